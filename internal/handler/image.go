package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snapcaption/internal/apperror"
	"github.com/sakif/snapcaption/internal/model"
	"github.com/sakif/snapcaption/internal/service"
)

const (
	// MaxUploadBytes is the largest image accepted by /generate-caption.
	MaxUploadBytes = 5 << 20
	// MaxSaveBodyBytes bounds the JSON body of /save-image, which carries
	// the image base64-encoded (4/3 of its size).
	MaxSaveBodyBytes = 10 << 20

	multipartOverhead = 1 << 20
	maxRegenBodyBytes = 64 << 10
)

var errTooLarge = apperror.ValidationFailed("image", "File size too large. Maximum size is 5MB.")

// GalleryService is what the image handler needs from service.GalleryService.
type GalleryService interface {
	DraftCaption(ctx context.Context, user *model.User, data []byte, mimeType string) (string, error)
	SaveImage(ctx context.Context, user *model.User, in service.SaveImageInput) (*model.MediaRecord, error)
	RegenerateCaption(ctx context.Context, user *model.User, imageID, locator string) (*model.MediaRecord, error)
	ListGallery(ctx context.Context, user *model.User, term string) ([]model.GalleryItem, error)
}

// ImageHandler serves the captioning workflow and the gallery. Every route
// sits behind auth.RequireAuth.
type ImageHandler struct {
	gallery GalleryService
	logger  *slog.Logger
}

// NewImageHandler creates an ImageHandler.
func NewImageHandler(gallery GalleryService, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{gallery: gallery, logger: logger}
}

type draftCaptionResponse struct {
	Success      bool   `json:"success"`
	Caption      string `json:"caption"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName"`
}

type saveImageRequest struct {
	ImageBuffer  string `json:"imageBuffer"` // base64, optionally a data: URL
	Caption      string `json:"caption"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName"`
}

type saveImageResponse struct {
	Success bool               `json:"success"`
	Image   *model.MediaRecord `json:"image"`
}

type regenerateRequest struct {
	ImageURL string `json:"imageUrl"`
}

type regenerateResponse struct {
	Success bool               `json:"success"`
	Caption string             `json:"caption"`
	Image   *model.MediaRecord `json:"image"`
}

type galleryResponse struct {
	Images     []model.GalleryItem `json:"images"`
	TotalCount int                 `json:"totalCount"`
	SearchTerm string              `json:"searchTerm"`
}

// HandleGenerateCaption captions an uploaded image without saving it; the
// client keeps the bytes and sends them back to /save-image once the user
// accepts the caption.
//
// HTTP: POST /generate-caption (multipart/form-data, file field "image")
func (h *ImageHandler) HandleGenerateCaption(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.logger, errTooLarge)
			return
		}
		writeError(w, r, h.logger, apperror.ValidationFailed("image", "No image file provided"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, h.logger, apperror.ValidationFailed("image", "No image file provided"))
		return
	}
	defer file.Close()

	if header.Size > MaxUploadBytes {
		writeError(w, r, h.logger, errTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	caption, err := h.gallery.DraftCaption(r.Context(), user, data, mimeType)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, draftCaptionResponse{
		Success:      true,
		Caption:      caption,
		MimeType:     mimeType,
		OriginalName: header.Filename,
	})
}

// HandleSaveImage stores a reviewed image and its caption.
//
// HTTP: POST /save-image
// REQUEST BODY: {"imageBuffer": "<base64>", "caption", "mimeType", "originalName"}
func (h *ImageHandler) HandleSaveImage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxSaveBodyBytes)

	var req saveImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	data, err := decodeImageBuffer(req.ImageBuffer)
	if err != nil {
		writeError(w, r, h.logger, apperror.ValidationFailed("imageBuffer", "Image data is not valid base64"))
		return
	}

	record, err := h.gallery.SaveImage(r.Context(), user, service.SaveImageInput{
		Data:         data,
		Caption:      req.Caption,
		MimeType:     req.MimeType,
		OriginalName: req.OriginalName,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, saveImageResponse{Success: true, Image: record})
}

// HandleRegenerateCaption captions a saved image again.
//
// HTTP: POST /regenerate-caption/{id}
// REQUEST BODY: {"imageUrl": "<locator or signed URL>"}
func (h *ImageHandler) HandleRegenerateCaption(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRegenBodyBytes)

	var req regenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	record, err := h.gallery.RegenerateCaption(r.Context(), user, chi.URLParam(r, "id"), req.ImageURL)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, regenerateResponse{Success: true, Caption: record.Caption, Image: record})
}

// HandleGallery lists the user's images, newest first, with signed URLs.
// On /search the "q" parameter filters by caption or date.
//
// HTTP: GET /  and  GET /search?q=term
func (h *ImageHandler) HandleGallery(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	term := strings.TrimSpace(r.URL.Query().Get("q"))

	items, err := h.gallery.ListGallery(r.Context(), user, term)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, galleryResponse{
		Images:     items,
		TotalCount: len(items),
		SearchTerm: term,
	})
}

// decodeImageBuffer accepts plain base64 or a "data:<type>;base64," URL.
func decodeImageBuffer(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		if i := strings.Index(rest, ","); i >= 0 {
			s = rest[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}
