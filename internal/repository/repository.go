// Package repository declares the persistence interfaces the service layer
// depends on. internal/repository/sqlite implements them; service tests use
// in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/snapcaption/internal/model"
)

// UserRepository stores user accounts.
//
// Lookups return apperror.ErrNotFound (wrapped in *apperror.AppError) when
// nothing matches. Create returns apperror.DuplicateEmail when the email is
// already registered.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
}

// MediaRepository is the per-user media metadata index.
type MediaRepository interface {
	// Create stores a new record and stamps CreatedAt. The caller supplies a
	// fresh ImageID.
	Create(ctx context.Context, record *model.MediaRecord) error
	GetByID(ctx context.Context, imageID string) (*model.MediaRecord, error)
	// ListByOwner returns the owner's records, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]model.MediaRecord, error)
	// UpdateCaption replaces the caption and returns the updated record.
	UpdateCaption(ctx context.Context, imageID, caption string) (*model.MediaRecord, error)
	// Search returns the subsequence of ListByOwner matching term
	// (see model.MediaRecord.Matches). An empty term returns ListByOwner.
	Search(ctx context.Context, term, ownerID string) ([]model.MediaRecord, error)
}
