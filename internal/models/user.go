package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user signed in through Google
type User struct {
	ID             uuid.UUID  `json:"id"`
	GoogleID       string     `json:"google_id"`
	Email          string     `json:"email"`
	Name           *string    `json:"name,omitempty"`
	Picture        *string    `json:"picture,omitempty"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GoogleProfile is the subset of the Google userinfo response stored on a user.
type GoogleProfile struct {
	GoogleID string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture"`
}
