package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snapcaption/internal/model"
)

type fakeUsers map[string]*model.User

func (f fakeUsers) GetUserByID(_ context.Context, id string) (*model.User, bool) {
	u, ok := f[id]
	return u, ok
}

func requestWithSession(t *testing.T, ts *TokenService, userID string) *http.Request {
	t.Helper()
	token, err := ts.Generate(userID)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	return req
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	users := fakeUsers{
		"u1": {ID: "u1", Email: "ann@example.com", PasswordHash: "secret-hash", Name: "Ann"},
	}

	var seen *model.User
	protected := RequireAuth(ts, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid session passes with public user", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, requestWithSession(t, ts, "u1"))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "u1", seen.ID)
		assert.Empty(t, seen.PasswordHash, "context user must not carry the hash")
	})

	cases := []struct {
		name string
		req  func() *http.Request
	}{
		{"no cookie", func() *http.Request { return httptest.NewRequest(http.MethodGet, "/", nil) }},
		{"garbage cookie", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
			return r
		}},
		{"user no longer exists", func() *http.Request { return requestWithSession(t, ts, "deleted") }},
		{"expired token", func() *http.Request {
			token, _ := ts.GenerateWithDuration("u1", -time.Minute)
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
			return r
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, tc.req())

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, SignInPath, rec.Header().Get("Location"))
		})
	}
}

func TestRedirectIfAuth(t *testing.T) {
	ts := newTestTokenService(t)
	users := fakeUsers{"u1": {ID: "u1"}}
	h := RedirectIfAuth(ts, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithSession(t, ts, "u1"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signin", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "tok", time.Hour, true)
	ClearSessionCookie(rec, true)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)

	set := cookies[0]
	assert.Equal(t, CookieName, set.Name)
	assert.Equal(t, "tok", set.Value)
	assert.Equal(t, 3600, set.MaxAge)
	assert.True(t, set.HttpOnly)
	assert.True(t, set.Secure)

	cleared := cookies[1]
	assert.Equal(t, CookieName, cleared.Name)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestUserFromContext_Missing(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)
}
