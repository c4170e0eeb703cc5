package model

import (
	"strings"
	"time"
)

// MediaRecord links a saved image to its caption and its owner.
//
// ImageURL is a locator into the object store. It is stable and never
// expires, but it is not fetchable by clients: the gallery hands out a signed
// URL next to it instead (see GalleryItem).
//
// Caption is the only field that changes after creation.
type MediaRecord struct {
	ImageID   string    `json:"imageId"   db:"image_id"`
	ImageURL  string    `json:"imageUrl"  db:"image_url"`
	Caption   string    `json:"caption"   db:"caption"`
	OwnerID   string    `json:"ownerId"   db:"owner_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// createdDateLayout is the date portion searched by Matches.
const createdDateLayout = "2006-01-02"

// Matches reports whether the record satisfies a gallery search term: the
// caption contains term case-insensitively, or the creation date
// (YYYY-MM-DD, UTC) contains it. Plain substring matching; an empty term
// matches everything.
func (m MediaRecord) Matches(term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(m.Caption), term) {
		return true
	}
	return strings.Contains(m.CreatedAt.UTC().Format(createdDateLayout), term)
}

// GalleryItem is a MediaRecord ready for display. The embedded ImageURL is
// still the unsigned locator; SignedURL is the time-limited URL a browser
// can load.
type GalleryItem struct {
	MediaRecord
	SignedURL string `json:"signedUrl"`
}
