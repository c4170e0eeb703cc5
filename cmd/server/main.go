// Command server runs the SnapCaption HTTP server.
//
// main only reads configuration and builds the external clients (database,
// object store, caption model); everything else lives in internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/genai"

	"github.com/sakif/snapcaption/internal/auth"
	"github.com/sakif/snapcaption/internal/caption"
	"github.com/sakif/snapcaption/internal/config"
	sqliteRepo "github.com/sakif/snapcaption/internal/repository/sqlite"
	"github.com/sakif/snapcaption/internal/server"
	"github.com/sakif/snapcaption/internal/storage"
	"github.com/sakif/snapcaption/internal/storage/minio"
	"github.com/sakif/snapcaption/internal/storage/s3"
)

// startupTimeout bounds opening the database, the bucket check and the
// model client.
const startupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	// From here the server owns db and closes it on shutdown.

	backend, err := newStorageBackend(ctx, cfg)
	if err != nil {
		db.Close()
		return fmt.Errorf("creating storage backend: %w", err)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("creating gemini client: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		db.Close()
		return fmt.Errorf("creating token service: %w", err)
	}

	var github *auth.GitHubProvider
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	} else {
		logger.Info("GITHUB_CLIENT_ID not set, GitHub sign-in disabled")
	}

	srv := server.New(server.Config{
		Port:          cfg.Port,
		SecureCookies: cfg.SecureCookies,
		CORSOrigins:   cfg.CORSOrigins,
	}, server.Deps{
		DB:        db,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(),
		Images:    storage.NewGateway(backend, logger),
		Captions:  caption.NewEngine(genaiClient, cfg.Gemini.Model, &http.Client{Timeout: 30 * time.Second}, logger),
		GitHub:    github,
	}, logger)

	logger.Info("dependencies ready",
		slog.String("database", cfg.DBPath),
		slog.String("storage", cfg.StorageDriver),
		slog.String("model", cfg.Gemini.Model),
	)

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	return srv.Start()
}

func newStorageBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageDriver {
	case config.StorageMinio:
		return minio.NewClient(ctx, minio.Options{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
	default:
		return s3.New(ctx, s3.Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
		})
	}
}
