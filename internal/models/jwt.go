package models

// SessionClaims are the claims carried by session tokens issued after Google sign-in
type SessionClaims struct {
	Sub   string `json:"sub"`   // User ID
	Email string `json:"email"` // User email
	Name  string `json:"name"`  // User name
	Exp   int64  `json:"exp"`   // Expiration time
	Iat   int64  `json:"iat"`   // Issued at
	Iss   string `json:"iss"`   // Issuer
}
