package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

var catalogNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

type Config struct {
	Profile           Profile
	Service           ServiceConfig
	HTTP              HTTPConfig
	Engine            EngineConfig
	Jobs              JobsConfig
	Results           ResultsConfig
	ObjectStore       ObjectStoreConfig
	SourceCredentials SourceCredentialsConfig
	Observability     ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type EngineConfig struct {
	Catalog     string
	DataDir     string
	InMemory    bool
	MemoryLimit string
	Threads     int
}

type JobsConfig struct {
	MaxConcurrent   int
	ShutdownTimeout time.Duration
}

type ResultsConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	UseSSL    bool
	URLStyle  string
	Preflight bool
}

// SourceCredentialsConfig holds the AWS_* fallback used when a registration
// request carries no explicit credentials.
type SourceCredentialsConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DUCKSERVE_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DUCKSERVE_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "DUCKSERVE_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKSERVE_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKSERVE_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKSERVE_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_ENGINE_CATALOG", &cfg.Engine.Catalog); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_ENGINE_DATA_DIR", &cfg.Engine.DataDir); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKSERVE_ENGINE_IN_MEMORY", &cfg.Engine.InMemory); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_ENGINE_MEMORY_LIMIT", &cfg.Engine.MemoryLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKSERVE_ENGINE_THREADS", &cfg.Engine.Threads); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKSERVE_JOBS_MAX_CONCURRENT", &cfg.Jobs.MaxConcurrent); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKSERVE_JOBS_SHUTDOWN_TIMEOUT", &cfg.Jobs.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKSERVE_RESULTS_DEFAULT_PAGE_SIZE", &cfg.Results.DefaultPageSize); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKSERVE_RESULTS_MAX_PAGE_SIZE", &cfg.Results.MaxPageSize); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKSERVE_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKSERVE_OBJECTSTORE_URL_STYLE", &cfg.ObjectStore.URLStyle); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKSERVE_OBJECTSTORE_PREFLIGHT", &cfg.ObjectStore.Preflight); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AWS_ACCESS_KEY_ID", &cfg.SourceCredentials.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AWS_SECRET_ACCESS_KEY", &cfg.SourceCredentials.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AWS_SESSION_TOKEN", &cfg.SourceCredentials.SessionToken); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AWS_REGION", &cfg.SourceCredentials.Region); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKSERVE_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "DUCKSERVE_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if !catalogNamePattern.MatchString(cfg.Engine.Catalog) {
		return fmt.Errorf("invalid DUCKSERVE_ENGINE_CATALOG: %q", cfg.Engine.Catalog)
	}
	if !cfg.Engine.InMemory && cfg.Engine.DataDir == "" {
		return fmt.Errorf("DUCKSERVE_ENGINE_DATA_DIR is required unless DUCKSERVE_ENGINE_IN_MEMORY is set")
	}
	if cfg.Engine.MemoryLimit == "" {
		return fmt.Errorf("DUCKSERVE_ENGINE_MEMORY_LIMIT is required")
	}
	if cfg.Engine.Threads <= 0 {
		return fmt.Errorf("DUCKSERVE_ENGINE_THREADS must be > 0")
	}
	if cfg.Jobs.MaxConcurrent <= 0 {
		return fmt.Errorf("DUCKSERVE_JOBS_MAX_CONCURRENT must be > 0")
	}
	if cfg.Results.DefaultPageSize <= 0 {
		return fmt.Errorf("DUCKSERVE_RESULTS_DEFAULT_PAGE_SIZE must be > 0")
	}
	if cfg.Results.MaxPageSize < cfg.Results.DefaultPageSize {
		return fmt.Errorf("DUCKSERVE_RESULTS_MAX_PAGE_SIZE must be >= DUCKSERVE_RESULTS_DEFAULT_PAGE_SIZE")
	}
	switch cfg.ObjectStore.URLStyle {
	case "", "path", "vhost":
	default:
		return fmt.Errorf("invalid DUCKSERVE_OBJECTSTORE_URL_STYLE: %q", cfg.ObjectStore.URLStyle)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "duckserve-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Engine: EngineConfig{
			Catalog:     "duckserve",
			DataDir:     "data",
			InMemory:    false,
			MemoryLimit: "16GB",
			Threads:     4,
		},
		Jobs: JobsConfig{
			MaxConcurrent:   8,
			ShutdownTimeout: 30 * time.Second,
		},
		Results: ResultsConfig{
			DefaultPageSize: 100,
			MaxPageSize:     10000,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  "",
			Region:    "us-east-1",
			UseSSL:    true,
			URLStyle:  "",
			Preflight: false,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Engine.InMemory = true
		cfg.Engine.MemoryLimit = "1GB"
		cfg.Engine.Threads = 1
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.Preflight = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
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
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
