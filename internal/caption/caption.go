// Package caption turns images into short descriptive captions with a Gemini
// vision model.
//
// Each caption is one GenerateContent call carrying a fixed prompt and the
// image bytes. There is no retry: a failed call is reported to the user, who
// can ask again.
package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/sakif/snapcaption/internal/apperror"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Prompt is the instruction sent with every image.
const Prompt = "Analyze this image and provide a detailed, creative caption that describes what you see. Keep it concise but informative (2-3 sentences max)."

// MaxFetchBytes caps the body read by CaptionFromURL.
const MaxFetchBytes = 10 << 20

// fallbackMIME is assumed for fetched images whose response does not name an
// image type.
const fallbackMIME = "image/jpeg"

// contentGenerator is the part of *genai.Models the engine calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var _ contentGenerator = (*genai.Models)(nil)

// Engine generates captions.
type Engine struct {
	models     contentGenerator
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewEngine creates an Engine over a Gemini client. httpClient is used by
// CaptionFromURL; nil means http.DefaultClient.
func NewEngine(client *genai.Client, model string, httpClient *http.Client, logger *slog.Logger) *Engine {
	return newEngine(client.Models, model, httpClient, logger)
}

func newEngine(models contentGenerator, model string, httpClient *http.Client, logger *slog.Logger) *Engine {
	if model == "" {
		model = DefaultModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Engine{models: models, model: model, httpClient: httpClient, logger: logger}
}

// CaptionFromBytes captions an image held in memory. The result is trimmed
// and never empty; any failure is apperror.CaptionFailed.
func (e *Engine) CaptionFromBytes(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", apperror.CaptionFailed(errors.New("caption: empty image"))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(Prompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	resp, err := e.models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return "", apperror.CaptionFailed(fmt.Errorf("caption: generating content with %s: %w", e.model, err))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", apperror.CaptionFailed(errors.New("caption: model returned no text"))
	}

	e.logger.DebugContext(ctx, "caption generated", "model", e.model, "mime_type", mimeType, "bytes", len(data))
	return text, nil
}

// CaptionFromURL fetches the image at imageURL with a single GET and
// captions it. A non-2xx status, a body over MaxFetchBytes or an empty
// body fails with apperror.CaptionFailed.
//
// The MIME type comes from the response Content-Type when it names an
// image/* type, and is image/jpeg otherwise.
func (e *Engine) CaptionFromURL(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", apperror.CaptionFailed(fmt.Errorf("caption: building image request: %w", err))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", apperror.CaptionFailed(fmt.Errorf("caption: fetching image: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperror.CaptionFailed(fmt.Errorf("caption: fetching image: status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes+1))
	if err != nil {
		return "", apperror.CaptionFailed(fmt.Errorf("caption: reading image: %w", err))
	}
	if len(data) > MaxFetchBytes {
		return "", apperror.CaptionFailed(fmt.Errorf("caption: image exceeds %d bytes", MaxFetchBytes))
	}

	return e.CaptionFromBytes(ctx, data, imageMIME(resp.Header.Get("Content-Type")))
}

func imageMIME(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return fallbackMIME
	}
	return mediaType
}
