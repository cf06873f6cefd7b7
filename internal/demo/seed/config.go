package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL      string
	Format          string
	Rows            int
	OutputDir       string
	Name            string
	UserCardinality int
	Seed            int64
	Query           string
	PollInterval    time.Duration
	Timeout         time.Duration
	HTTPTimeout     time.Duration
	PageSize        int
	Upload          UploadConfig
}

// UploadConfig is only used when Bucket is set; the generated file is then
// registered by its s3:// location instead of its local path. The API reads
// it with its own environment credentials.
type UploadConfig struct {
	Bucket          string
	KeyPrefix       string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	URLStyle        string
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:      "http://localhost:8080",
		Format:          "parquet",
		Rows:            1000,
		OutputDir:       "seed-data",
		Name:            "events",
		UserCardinality: 200,
		Seed:            time.Now().UTC().UnixNano(),
		PollInterval:    500 * time.Millisecond,
		Timeout:         2 * time.Minute,
		HTTPTimeout:     10 * time.Second,
		PageSize:        10,
		Upload: UploadConfig{
			KeyPrefix: "seed",
			Region:    "us-east-1",
			UseSSL:    true,
		},
	}
}

func (c Config) Uploads() bool {
	return c.Upload.Bucket != ""
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "DUCKSERVE_SEED_API_URL", &cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_FORMAT", &cfg.Format); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKSERVE_SEED_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_OUTPUT_DIR", &cfg.OutputDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_NAME", &cfg.Name); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKSERVE_SEED_USER_CARDINALITY", &cfg.UserCardinality); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "DUCKSERVE_SEED_RANDOM_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_QUERY", &cfg.Query); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKSERVE_SEED_POLL_INTERVAL", &cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKSERVE_SEED_TIMEOUT", &cfg.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKSERVE_SEED_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKSERVE_SEED_PAGE_SIZE", &cfg.PageSize); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_BUCKET", &cfg.Upload.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_KEY_PREFIX", &cfg.Upload.KeyPrefix); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_S3_ENDPOINT", &cfg.Upload.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_S3_REGION", &cfg.Upload.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_S3_ACCESS_KEY_ID", &cfg.Upload.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_S3_SECRET_ACCESS_KEY", &cfg.Upload.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKSERVE_SEED_S3_USE_SSL", &cfg.Upload.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_SEED_S3_URL_STYLE", &cfg.Upload.URLStyle); err != nil {
		return Config{}, err
	}

	cfg.Format = strings.ToLower(cfg.Format)
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_API_URL is required")
	}
	if cfg.Format != "csv" && cfg.Format != "parquet" {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_FORMAT must be csv or parquet")
	}
	if cfg.Rows <= 0 {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_ROWS must be > 0")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_OUTPUT_DIR is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_NAME is required")
	}
	if cfg.UserCardinality <= 0 {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_USER_CARDINALITY must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_POLL_INTERVAL must be > 0")
	}
	if cfg.Timeout <= 0 {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_TIMEOUT must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_HTTP_TIMEOUT must be > 0")
	}
	if cfg.PageSize <= 0 {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_PAGE_SIZE must be > 0")
	}
	if cfg.Uploads() && (cfg.Upload.AccessKeyID == "") != (cfg.Upload.SecretAccessKey == "") {
		return Config{}, fmt.Errorf("DUCKSERVE_SEED_S3_ACCESS_KEY_ID and DUCKSERVE_SEED_S3_SECRET_ACCESS_KEY must be set together")
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.Upload.KeyPrefix = strings.Trim(cfg.Upload.KeyPrefix, "/")
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
