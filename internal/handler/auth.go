package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/snapcaption/internal/auth"
	"github.com/sakif/snapcaption/internal/model"
	"github.com/sakif/snapcaption/internal/service"
)

const (
	oauthStateCookie = "oauth_state"
	maxAuthBodyBytes = 64 << 10
)

// AuthService is what the auth handler needs from service.AuthService.
type AuthService interface {
	Signup(ctx context.Context, in service.SignupInput) (*service.Session, error)
	Signin(ctx context.Context, email, password string) (*service.Session, error)
	LoginWithGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.Session, error)
}

// GitHubExchanger completes the GitHub OAuth flow (auth.GitHubProvider).
type GitHubExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves sign-up, sign-in, sign-out, GitHub sign-in and /api/me.
type AuthHandler struct {
	auth          AuthService
	github        GitHubExchanger // nil when GitHub sign-in is not configured
	sessionTTL    time.Duration
	secureCookies bool
	logger        *slog.Logger
}

// AuthHandlerConfig holds the cookie settings of AuthHandler.
type AuthHandlerConfig struct {
	SessionTTL    time.Duration
	SecureCookies bool
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(svc AuthService, github GitHubExchanger, cfg AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:          svc,
		github:        github,
		sessionTTL:    cfg.SessionTTL,
		secureCookies: cfg.SecureCookies,
		logger:        logger,
	}
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type formDescription struct {
	Form   string   `json:"form"`
	Fields []string `json:"fields"`
}

// HandleSignupForm describes the sign-up form.
//
// HTTP: GET /signup
func (h *AuthHandler) HandleSignupForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, formDescription{
		Form:   "signup",
		Fields: []string{"email", "password", "confirmPassword", "name"},
	})
}

// HandleSigninForm describes the sign-in form.
//
// HTTP: GET /signin
func (h *AuthHandler) HandleSigninForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, formDescription{
		Form:   "signin",
		Fields: []string{"email", "password"},
	})
}

// HandleSignup creates an account and signs it in.
//
// HTTP: POST /signup
// REQUEST BODY: {"email","password","confirmPassword","name"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)

	var in service.SignupInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	session, err := h.auth.Signup(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.startSession(w, session)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": session.User})
}

// HandleSignin signs in with email and password.
//
// HTTP: POST /signin
// REQUEST BODY: {"email","password"}
func (h *AuthHandler) HandleSignin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)

	var in signinRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	session, err := h.auth.Signin(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.startSession(w, session)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": session.User})
}

// HandleSignout clears the session cookie and sends the user to sign-in.
// The token itself stays valid until it expires; without the cookie the
// browser no longer sends it.
//
// HTTP: GET /signout
func (h *AuthHandler) HandleSignout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.secureCookies)
	http.Redirect(w, r, auth.SignInPath, http.StatusSeeOther)
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects to GitHub's authorization page. A random state
// goes into a short-lived cookie and is checked on callback (CSRF).
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes GitHub sign-in.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.WarnContext(r.Context(), "github callback: invalid state")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.InfoContext(r.Context(), "github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, auth.SignInPath+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "github callback: exchange failed", slog.Any("error", err))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	session, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.startSession(w, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, session *service.Session) {
	auth.SetSessionCookie(w, session.Token, h.sessionTTL, h.secureCookies)
}

// currentUser returns the user RequireAuth placed in the context. On a route
// without RequireAuth it redirects to sign-in and returns false.
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, auth.SignInPath, http.StatusSeeOther)
		return nil, false
	}
	return user, true
}
