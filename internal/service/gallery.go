package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/snapcaption/internal/apperror"
	"github.com/sakif/snapcaption/internal/model"
	"github.com/sakif/snapcaption/internal/repository"
)

// signConcurrency bounds the presign calls in flight for one gallery page.
const signConcurrency = 8

// ImageStore is the object store gateway (storage.Gateway).
type ImageStore interface {
	Put(ctx context.Context, data []byte, contentType, suggestedName string) (string, error)
	Sign(ctx context.Context, locator string) string
}

// Captioner is the caption engine (caption.Engine).
type Captioner interface {
	CaptionFromBytes(ctx context.Context, data []byte, mimeType string) (string, error)
	CaptionFromURL(ctx context.Context, imageURL string) (string, error)
}

// GalleryService runs the captioning workflow: draft a caption, save an
// image with its caption, regenerate a caption, and list or search a user's
// gallery.
type GalleryService struct {
	media    repository.MediaRepository
	store    ImageStore
	captions Captioner
	logger   *slog.Logger
}

// NewGalleryService creates a GalleryService.
func NewGalleryService(
	media repository.MediaRepository,
	store ImageStore,
	captions Captioner,
	logger *slog.Logger,
) *GalleryService {
	return &GalleryService{
		media:    media,
		store:    store,
		captions: captions,
		logger:   logger,
	}
}

// SaveImageInput is an image the user has reviewed and wants to keep.
type SaveImageInput struct {
	Data         []byte
	Caption      string
	MimeType     string
	OriginalName string
}

// DraftCaption captions uploaded bytes so the user can review the result
// before saving. Nothing is stored.
func (s *GalleryService) DraftCaption(ctx context.Context, user *model.User, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", apperror.ValidationFailed("image", "No image file provided")
	}
	if !IsImageType(mimeType) {
		return "", apperror.ValidationFailed("image", "Only image files are allowed! Please upload a valid image.")
	}

	caption, err := s.captions.CaptionFromBytes(ctx, data, mimeType)
	if err != nil {
		s.logCaptionFailure(ctx, user, err)
		return "", captionError(err)
	}
	return caption, nil
}

// SaveImage stores the bytes, then indexes a new record owned by user.
//
// The object write happens before the index write. If indexing fails after
// the object was stored, the object is left in place (there is no
// compensating delete) and its locator is logged.
func (s *GalleryService) SaveImage(ctx context.Context, user *model.User, in SaveImageInput) (*model.MediaRecord, error) {
	caption := strings.TrimSpace(in.Caption)
	if len(in.Data) == 0 || caption == "" {
		return nil, apperror.ValidationFailed("", "Image and caption are required")
	}
	if !IsImageType(in.MimeType) {
		return nil, apperror.ValidationFailed("mimeType", "Only image files are allowed! Please upload a valid image.")
	}

	locator, err := s.store.Put(ctx, in.Data, in.MimeType, in.OriginalName)
	if err != nil {
		s.logger.ErrorContext(ctx, "storing image failed",
			slog.String("userID", user.ID),
			slog.Any("error", apperror.CauseOf(err)),
		)
		return nil, storageError("Failed to save image", err)
	}

	record := &model.MediaRecord{
		ImageID:  xid.New().String(),
		ImageURL: locator,
		Caption:  caption,
		OwnerID:  user.ID,
	}
	if err := s.media.Create(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "indexing image failed, object orphaned",
			slog.String("userID", user.ID),
			slog.String("locator", locator),
			slog.Any("error", err),
		)
		return nil, apperror.StorageFailure("Failed to save image", err)
	}

	s.logger.InfoContext(ctx, "image saved",
		slog.String("userID", user.ID),
		slog.String("imageID", record.ImageID),
	)
	return record, nil
}

// RegenerateCaption captions the image of imageID again and stores the new
// caption. Only the caption changes.
//
// The record must belong to user; otherwise the result is NotFound, the same
// as for an unknown ID. locator must name the record's own object, either as
// the stored locator or as a signed URL for it; anything else is Forbidden.
// The model always fetches a fresh signature of the stored locator, never the
// URL the client sent.
func (s *GalleryService) RegenerateCaption(ctx context.Context, user *model.User, imageID, locator string) (*model.MediaRecord, error) {
	if strings.TrimSpace(locator) == "" {
		return nil, apperror.ValidationFailed("imageUrl", "Image URL is required")
	}

	record, err := s.media.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.StorageFailure("Failed to regenerate caption", err)
	}
	if record.OwnerID != user.ID {
		s.logger.WarnContext(ctx, "regenerate on another user's image refused",
			slog.String("userID", user.ID),
			slog.String("imageID", imageID),
		)
		return nil, apperror.NotFound("image", imageID)
	}

	if !sameObject(locator, record.ImageURL) {
		s.logger.WarnContext(ctx, "regenerate with a foreign image URL refused",
			slog.String("userID", user.ID),
			slog.String("imageID", imageID),
		)
		return nil, apperror.Forbidden("Image URL does not belong to this image")
	}

	caption, err := s.captions.CaptionFromURL(ctx, s.store.Sign(ctx, record.ImageURL))
	if err != nil {
		s.logCaptionFailure(ctx, user, err)
		return nil, captionError(err)
	}

	updated, err := s.media.UpdateCaption(ctx, imageID, caption)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.StorageFailure("Failed to regenerate caption", err)
	}

	s.logger.InfoContext(ctx, "caption regenerated",
		slog.String("userID", user.ID),
		slog.String("imageID", imageID),
	)
	return updated, nil
}

// ListGallery returns the user's records matching term (all of them when
// term is empty), newest first, each with a signed URL. Signing fans out
// concurrently; the output keeps the index order.
func (s *GalleryService) ListGallery(ctx context.Context, user *model.User, term string) ([]model.GalleryItem, error) {
	records, err := s.media.Search(ctx, strings.TrimSpace(term), user.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing gallery failed",
			slog.String("userID", user.ID),
			slog.Any("error", err),
		)
		return nil, apperror.StorageFailure("Failed to load images", err)
	}

	items := make([]model.GalleryItem, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(signConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			items[i] = model.GalleryItem{
				MediaRecord: rec,
				SignedURL:   s.store.Sign(gctx, rec.ImageURL),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperror.StorageFailure("Failed to load images", err)
	}

	return items, nil
}

// IsImageType reports whether mimeType is an image/* media type.
func IsImageType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// sameObject reports whether locator is stored, or stored plus a signature
// query string.
func sameObject(locator, stored string) bool {
	locator = strings.TrimSpace(locator)
	if locator == stored {
		return true
	}
	base, _, signed := strings.Cut(locator, "?")
	return signed && base == stored
}

func (s *GalleryService) logCaptionFailure(ctx context.Context, user *model.User, err error) {
	s.logger.ErrorContext(ctx, "caption generation failed",
		slog.String("userID", user.ID),
		slog.Any("error", apperror.CauseOf(err)),
	)
}

// captionError keeps an apperror.ErrCaption as is and converts anything else
// into one.
func captionError(err error) error {
	if errors.Is(err, apperror.ErrCaption) {
		return err
	}
	return apperror.CaptionFailed(err)
}

func storageError(message string, err error) error {
	if errors.Is(err, apperror.ErrStorage) {
		return err
	}
	return apperror.StorageFailure(message, err)
}
