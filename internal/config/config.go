// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageS3    = "s3"
	StorageMinio = "minio"

	minSecretLength = 16
	defaultEnvFile  = ".env"
)

// Config contains server configuration parameters.
type Config struct {
	Port          int           `env:"PORT" envDefault:"8080"`
	LogLevel      slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	DBPath        string        `env:"DB_PATH" envDefault:"data/snapcaption.db"`
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
	CORSOrigins   []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"s3"`
	S3            S3
	Minio         Minio  `envPrefix:"MINIO_"`
	Gemini        Gemini `envPrefix:"GEMINI_"`
	GitHub        GitHub `envPrefix:"GITHUB_"`
}

// S3 contains AWS S3 (or S3-compatible) parameters. The names follow the
// AWS SDK conventions, so there is no common prefix.
type S3 struct {
	Bucket          string `env:"S3_BUCKET_NAME"`
	Region          string `env:"AWS_REGION"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint        string `env:"S3_ENDPOINT"`
}

// Minio contains MinIO object storage parameters.
type Minio struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"snapcaption"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// Gemini contains the caption model settings.
type Gemini struct {
	APIKey string `env:"API_KEY"`
	Model  string `env:"MODEL" envDefault:"gemini-2.0-flash"`
}

// GitHub contains the optional GitHub OAuth app credentials.
type GitHub struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHub) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Load reads an optional .env file (ENV_FILE overrides the path), then parses
// the environment. Variables already set in the environment win over the
// file. Load does not validate; call Validate before using the result.
func Load() (*Config, error) {
	path := os.Getenv("ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	return &cfg, nil
}

// Validate reports every missing or invalid required setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if len(c.SessionSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters", minSecretLength))
	}
	if c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}

	switch c.StorageDriver {
	case StorageS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET_NAME is required"))
		}
		if c.S3.Region == "" {
			errs = append(errs, errors.New("AWS_REGION is required"))
		}
	case StorageMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT and MINIO_BUCKET_NAME are required"))
		}
		if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not one of %q, %q", c.StorageDriver, StorageS3, StorageMinio))
	}

	return errors.Join(errs...)
}
