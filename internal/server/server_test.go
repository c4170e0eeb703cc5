package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/snapcaption/internal/auth"
	sqliteRepo "github.com/sakif/snapcaption/internal/repository/sqlite"
)

// memoryStore keeps objects in a map and signs by appending a query string.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, data []byte, _ string, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	locator := "https://store.test/images/" + name
	m.objects[locator] = data
	return locator, nil
}

func (m *memoryStore) Sign(_ context.Context, locator string) string {
	return locator + "?sig=1"
}

type stubCaptioner struct{ calls int }

func (s *stubCaptioner) CaptionFromBytes(context.Context, []byte, string) (string, error) {
	s.calls++
	return "A dog on a beach.", nil
}

func (s *stubCaptioner) CaptionFromURL(context.Context, string) (string, error) {
	s.calls++
	return "A dog running on a beach.", nil
}

func newTestServer(t *testing.T, cfg Config, github *auth.GitHubProvider) (http.Handler, *stubCaptioner) {
	t.Helper()

	db, err := sqliteRepo.New(context.Background(), filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("server-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	captions := &stubCaptioner{}
	s := New(cfg, Deps{
		DB:        db,
		Tokens:    tokens,
		Passwords: auth.NewPasswordServiceForTest(bcrypt.MinCost),
		Images:    &memoryStore{objects: map[string][]byte{}},
		Captions:  captions,
		GitHub:    github,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return s.Handler(), captions
}

func do(h http.Handler, req *http.Request, session *http.Cookie) *httptest.ResponseRecorder {
	if session != nil {
		req.AddCookie(session)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func signup(t *testing.T, h http.Handler, email string) *http.Cookie {
	t.Helper()
	body := `{"email":"` + email + `","password":"secret1","confirmPassword":"secret1","name":"Tester"}`
	rr := do(h, httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(body)), nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("signup set no session cookie")
	return nil
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t, Config{}, nil)

	rr := do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))
}

func TestProtectedRoutesRedirectToSignin(t *testing.T) {
	h, _ := newTestServer(t, Config{}, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/search?q=dog"},
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/signout"},
		{http.MethodPost, "/generate-caption"},
		{http.MethodPost, "/save-image"},
		{http.MethodPost, "/regenerate-caption/abc"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rr := do(h, httptest.NewRequest(route.method, route.path, nil), nil)
			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, "/signin", rr.Header().Get("Location"))
		})
	}
}

func TestSignedInUserIsRedirectedFromSignin(t *testing.T) {
	h, _ := newTestServer(t, Config{}, nil)
	session := signup(t, h, "a@example.com")

	rr := do(h, httptest.NewRequest(http.MethodGet, "/signin", nil), session)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestGitHubRoutesOnlyWhenConfigured(t *testing.T) {
	h, _ := newTestServer(t, Config{}, nil)
	rr := do(h, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	gh := auth.NewGitHubProvider("client-id", "client-secret", "http://localhost/auth/github/callback")
	h, _ = newTestServer(t, Config{}, gh)
	rr = do(h, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil), nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "client_id=client-id")
}

func TestCaptionWorkflow(t *testing.T) {
	h, captions := newTestServer(t, Config{}, nil)
	session := signup(t, h, "owner@example.com")

	// draft
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "dog.png")
	require.NoError(t, err)
	png := []byte("\x89PNG\r\n\x1a\n fake png body")
	_, _ = part.Write(png)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/generate-caption", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := do(h, req, session)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"mimeType":"image/png"`)

	// save
	saveBody, _ := json.Marshal(map[string]string{
		"imageBuffer":  base64.StdEncoding.EncodeToString(png),
		"caption":      "A dog on a beach.",
		"mimeType":     "image/png",
		"originalName": "dog.png",
	})
	rr = do(h, httptest.NewRequest(http.MethodPost, "/save-image", bytes.NewReader(saveBody)), session)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var saved struct {
		Image struct {
			ImageID  string `json:"imageId"`
			ImageURL string `json:"imageUrl"`
		} `json:"image"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&saved))
	require.NotEmpty(t, saved.Image.ImageID)

	// gallery
	rr = do(h, httptest.NewRequest(http.MethodGet, "/", nil), session)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"totalCount":1`)
	assert.Contains(t, rr.Body.String(), saved.Image.ImageURL+"?sig=1")

	// search miss
	rr = do(h, httptest.NewRequest(http.MethodGet, "/search?q=cat", nil), session)
	assert.Contains(t, rr.Body.String(), `"totalCount":0`)

	// regenerate
	regen := `{"imageUrl":"` + saved.Image.ImageURL + `"}`
	rr = do(h, httptest.NewRequest(http.MethodPost, "/regenerate-caption/"+saved.Image.ImageID, strings.NewReader(regen)), session)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "A dog running on a beach.")
	assert.Equal(t, 2, captions.calls)

	// a URL that is not this image's object is refused before any fetch
	rr = do(h, httptest.NewRequest(http.MethodPost, "/regenerate-caption/"+saved.Image.ImageID,
		strings.NewReader(`{"imageUrl":"http://169.254.169.254/latest/meta-data/"}`)), session)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 2, captions.calls)

	// another user cannot see or regenerate it
	other := signup(t, h, "other@example.com")
	rr = do(h, httptest.NewRequest(http.MethodGet, "/", nil), other)
	assert.Contains(t, rr.Body.String(), `"totalCount":0`)
	rr = do(h, httptest.NewRequest(http.MethodPost, "/regenerate-caption/"+saved.Image.ImageID, strings.NewReader(regen)), other)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORS(t *testing.T) {
	h, _ := newTestServer(t, Config{CORSOrigins: []string{"https://app.example"}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/save-image", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := do(h, req, nil)

	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = do(h, req, nil)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
