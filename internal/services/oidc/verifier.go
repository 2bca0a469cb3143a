package oidc

import (
	"context"
	"fmt"

	"github.com/benvon/ai-task/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Verifier verifies Google ID tokens
type Verifier struct {
	jwksManager *JWKSManager
	jwksURL     string
	audience    string
}

// NewVerifier creates a verifier for ID tokens issued to audience
func NewVerifier(jwksManager *JWKSManager, jwksURL, audience string) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		jwksURL:     jwksURL,
		audience:    audience,
	}
}

// Verify checks the signature, expiry, issuer and audience of an ID token
// and returns the profile it carries.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*models.GoogleProfile, error) {
	keys, err := v.keysFor(ctx, idToken)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse([]byte(idToken),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	// Google uses both forms of its issuer
	if iss := token.Issuer(); iss != GoogleIssuer && iss != "accounts.google.com" {
		return nil, fmt.Errorf("token issuer mismatch: expected %s, got %s", GoogleIssuer, iss)
	}

	profile := &models.GoogleProfile{
		GoogleID: token.Subject(),
		Email:    stringClaim(token, "email"),
		Name:     stringClaim(token, "name"),
		Picture:  stringClaim(token, "picture"),
	}
	if profile.GoogleID == "" || profile.Email == "" {
		return nil, fmt.Errorf("token is missing sub or email")
	}
	return profile, nil
}

// keysFor returns the key set, refreshed once when the token's key ID is
// missing from the cached set.
func (v *Verifier) keysFor(ctx context.Context, idToken string) (jwk.Set, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	msg, err := jws.Parse([]byte(idToken))
	if err != nil || len(msg.Signatures()) == 0 {
		return keys, nil
	}
	kid := msg.Signatures()[0].ProtectedHeaders().KeyID()
	if kid == "" {
		return keys, nil
	}
	if _, found := keys.LookupKeyID(kid); found {
		return keys, nil
	}

	keys, err = v.jwksManager.Refresh(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh JWKS: %w", err)
	}
	return keys, nil
}

func stringClaim(token jwt.Token, name string) string {
	if v, ok := token.Get(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
