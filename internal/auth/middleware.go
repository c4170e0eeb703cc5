package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/snapcaption/internal/model"
)

// CookieName is the HttpOnly cookie that carries the session token.
const CookieName = "session"

// SignInPath is where unauthenticated requests to protected routes are sent.
const SignInPath = "/signin"

// contextKey is an unexported type so no other package can read or shadow
// the user stored by this package.
type contextKey string

const userKey contextKey = "user"

// UserLookup resolves the user a session token names. The bool is false when
// the user does not exist (or could not be loaded).
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, bool)
}

// RequireAuth lets a request through only with a valid session whose user
// still exists. The public user (no password hash) goes into the request
// context. Anything else is answered with 303 See Other to SignInPath.
func RequireAuth(tokens *TokenService, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := sessionUser(r, tokens, users)
			if !ok {
				http.Redirect(w, r, SignInPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RedirectIfAuth sends already signed-in users to "/" instead of the
// sign-up and sign-in routes.
func RedirectIfAuth(tokens *TokenService, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := sessionUser(r, tokens, users); ok {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the signed-in user placed by RequireAuth.
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // route is not behind RequireAuth
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// SetSessionCookie stores token in the session cookie for ttl.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionUser(r *http.Request, tokens *TokenService, users UserLookup) (*model.User, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	userID, err := tokens.Validate(cookie.Value)
	if err != nil {
		return nil, false
	}

	user, ok := users.GetUserByID(r.Context(), userID)
	if !ok {
		return nil, false
	}
	return user.Public(), true
}
