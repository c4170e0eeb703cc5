// Package storage is the object store gateway: it writes image bytes under
// fresh keys and turns stored locators into short-lived signed URLs.
//
// The bucket itself is behind Backend, implemented by storage/s3 (AWS S3 or
// any S3-compatible endpoint) and storage/minio.
package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snapcaption/internal/apperror"
)

// SignedURLTTL is how long a URL from Sign stays valid.
const SignedURLTTL = time.Hour

// KeyPrefix is the folder every object key lives under.
const KeyPrefix = "images/"

// Backend is one bucket in an object store.
type Backend interface {
	// PutObject writes size bytes from body under key.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// PresignGet returns a URL that allows a GET of key until expiry passes.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	// BaseURL is the unsigned URL of the bucket; BaseURL()+"/"+key is the
	// object's locator. No trailing slash.
	BaseURL() string
}

// Gateway stores images through a Backend.
type Gateway struct {
	backend Backend
	logger  *slog.Logger
	newID   func() string
}

// NewGateway creates a Gateway over backend.
func NewGateway(backend Backend, logger *slog.Logger) *Gateway {
	return &Gateway{
		backend: backend,
		logger:  logger,
		newID:   func() string { return uuid.NewString() },
	}
}

// Put writes data under "images/<uuid><ext>", where ext is the lower-cased
// extension of suggestedName (none if it has none), and returns the
// object's locator. Keys are never reused, so a Put never overwrites.
//
// Failures come back as apperror.StorageFailure.
func (g *Gateway) Put(ctx context.Context, data []byte, contentType, suggestedName string) (string, error) {
	key := KeyPrefix + g.newID() + strings.ToLower(path.Ext(suggestedName))

	if err := g.backend.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", apperror.StorageFailure("Failed to upload image", err)
	}

	g.logger.DebugContext(ctx, "object stored", "key", key, "size", len(data))
	return g.backend.BaseURL() + "/" + key, nil
}

// Sign returns a URL for locator that is readable for SignedURLTTL.
//
// A locator outside this gateway's bucket, or one that already carries a
// query string (already signed), comes back unchanged. When presigning
// fails the error is logged and the unsigned locator is returned, so the
// result is never empty for a non-empty locator.
func (g *Gateway) Sign(ctx context.Context, locator string) string {
	key, ok := g.keyOf(locator)
	if !ok {
		return locator
	}

	signed, err := g.backend.PresignGet(ctx, key, SignedURLTTL)
	if err != nil || signed == "" {
		g.logger.WarnContext(ctx, "presigning object failed, serving unsigned locator",
			"key", key,
			"error", err,
		)
		return locator
	}
	return signed
}

// keyOf extracts the object key from one of this gateway's locators.
func (g *Gateway) keyOf(locator string) (string, bool) {
	if strings.Contains(locator, "?") {
		return "", false
	}
	key, ok := strings.CutPrefix(locator, g.backend.BaseURL()+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
