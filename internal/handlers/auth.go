package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// OAuthClient runs the Google authorization code flow
type OAuthClient interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*models.GoogleProfile, error)
}

// SessionIssuer issues session tokens and signed OAuth state values
type SessionIssuer interface {
	Issue(user *models.User) (string, error)
	IssueState() (string, error)
	VerifyState(state string) error
}

// IDTokenVerifier verifies Google ID tokens
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*models.GoogleProfile, error)
}

// UserUpserter stores Google users
type UserUpserter interface {
	UpsertGoogleUser(ctx context.Context, profile models.GoogleProfile, accessToken, refreshToken string, expiresAt *time.Time) (*models.User, error)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	google   OAuthClient
	sessions SessionIssuer
	verifier IDTokenVerifier
	users    UserUpserter
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler. verifier may be nil, which
// disables ID token sign-in.
func NewAuthHandler(google OAuthClient, sessions SessionIssuer, verifier IDTokenVerifier, users UserUpserter, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		google:   google,
		sessions: sessions,
		verifier: verifier,
		users:    users,
		logger:   logger.OrNop(log),
	}
}

// RegisterRoutes registers the public sign-in routes on a router carrying the /auth prefix
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/google/login", h.GetGoogleLogin).Methods("GET")
	r.HandleFunc("/google/redirect", h.RedirectToGoogle).Methods("GET")
	r.HandleFunc("/google/callback", h.GoogleCallback).Methods("GET")
	r.HandleFunc("/google/token", h.SignInWithIDToken).Methods("POST")
}

// LoginResponse carries the Google authorization URL and its state
type LoginResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// SessionResponse is returned after a successful sign-in
type SessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// IDTokenRequest carries a Google ID token obtained by a client-side sign-in
type IDTokenRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

func (h *AuthHandler) authURL(w http.ResponseWriter) (LoginResponse, bool) {
	if !h.google.Configured() {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Google sign-in is not configured")
		return LoginResponse{}, false
	}
	state, err := h.sessions.IssueState()
	if err != nil {
		h.logger.Error("failed_to_issue_oauth_state", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to start sign-in")
		return LoginResponse{}, false
	}
	return LoginResponse{URL: h.google.AuthCodeURL(state), State: state}, true
}

// GetGoogleLogin returns the URL the frontend sends the user to
func (h *AuthHandler) GetGoogleLogin(w http.ResponseWriter, r *http.Request) {
	login, ok := h.authURL(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, login)
}

// RedirectToGoogle sends the browser straight to Google
func (h *AuthHandler) RedirectToGoogle(w http.ResponseWriter, r *http.Request) {
	login, ok := h.authURL(w)
	if !ok {
		return
	}
	http.Redirect(w, r, login.URL, http.StatusFound)
}

// GoogleCallback completes the code flow and issues a session token
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Google sign-in was denied: "+errParam)
		return
	}

	code := query.Get("code")
	if code == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Missing authorization code")
		return
	}
	if err := h.sessions.VerifyState(query.Get("state")); err != nil {
		h.logger.Warn("oauth_state_rejected", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid or expired state")
		return
	}

	ctx := r.Context()
	token, err := h.google.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("oauth_code_exchange_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Failed to exchange authorization code")
		return
	}

	profile, err := h.google.FetchUserInfo(ctx, token)
	if err != nil {
		h.logger.Error("oauth_userinfo_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to fetch Google profile")
		return
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiresAt = &token.Expiry
	}
	h.signIn(w, r, *profile, token.AccessToken, token.RefreshToken, expiresAt)
}

// SignInWithIDToken signs in with a Google ID token verified against Google's keys
func (h *AuthHandler) SignInWithIDToken(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil || !h.google.Configured() {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Google sign-in is not configured")
		return
	}

	var req IDTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		h.logger.Warn("id_token_rejected", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Invalid ID token")
		return
	}
	h.signIn(w, r, *profile, "", "", nil)
}

func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request, profile models.GoogleProfile, accessToken, refreshToken string, expiresAt *time.Time) {
	user, err := h.users.UpsertGoogleUser(r.Context(), profile, accessToken, refreshToken, expiresAt)
	if err != nil {
		h.logger.Error("failed_to_upsert_user", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to store user")
		return
	}

	session, err := h.sessions.Issue(user)
	if err != nil {
		h.logger.Error("failed_to_issue_session", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to issue session")
		return
	}

	h.logger.Info("user_signed_in", zap.String("user_id", logger.SanitizeUserID(user.ID)))
	respondJSON(w, http.StatusOK, SessionResponse{Token: session, User: user})
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	respondJSON(w, http.StatusOK, user)
}
