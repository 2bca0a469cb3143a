package oidc

import (
	"errors"
	"fmt"
	"time"

	"github.com/benvon/ai-task/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	// SessionIssuer is the issuer of session and state tokens
	SessionIssuer = "ai-task"
	// StateTTL bounds the time between login redirect and callback
	StateTTL = 10 * time.Minute

	purposeClaim   = "purpose"
	purposeSession = "session"
	purposeState   = "oauth_state"
)

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// SessionManager issues and verifies HS256 session tokens
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a session manager. secret must not be empty.
func NewSessionManager(secret string, ttl time.Duration) (*SessionManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	return &SessionManager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a session token for user
func (m *SessionManager) Issue(user *models.User) (string, error) {
	b := jwt.NewBuilder().Subject(user.ID.String()).Claim("email", user.Email)
	if user.Name != nil {
		b = b.Claim("name", *user.Name)
	}
	return m.sign(b, purposeSession, m.ttl)
}

// Verify checks a session token and returns its claims
func (m *SessionManager) Verify(raw string) (*models.SessionClaims, error) {
	token, err := m.parse(raw, purposeSession)
	if err != nil {
		return nil, err
	}
	return &models.SessionClaims{
		Sub:   token.Subject(),
		Email: stringClaim(token, "email"),
		Name:  stringClaim(token, "name"),
		Exp:   token.Expiration().Unix(),
		Iat:   token.IssuedAt().Unix(),
		Iss:   token.Issuer(),
	}, nil
}

// IssueState signs an OAuth state value so the callback needs no server side storage
func (m *SessionManager) IssueState() (string, error) {
	return m.sign(jwt.NewBuilder().JwtID(fmt.Sprintf("%d", m.now().UnixNano())), purposeState, StateTTL)
}

// VerifyState checks a state value returned by the provider
func (m *SessionManager) VerifyState(state string) error {
	_, err := m.parse(state, purposeState)
	return err
}

func (m *SessionManager) sign(b *jwt.Builder, purpose string, ttl time.Duration) (string, error) {
	now := m.now()
	token, err := b.
		Issuer(SessionIssuer).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(purposeClaim, purpose).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

func (m *SessionManager) parse(raw, purpose string) (jwt.Token, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, m.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(SessionIssuer),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if stringClaim(token, purposeClaim) != purpose {
		return nil, fmt.Errorf("%w: wrong token purpose", ErrInvalidToken)
	}
	return token, nil
}
