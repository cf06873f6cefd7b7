package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("duckserve-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Engine.Catalog != "duckserve" {
		t.Fatalf("Engine.Catalog = %q", cfg.Engine.Catalog)
	}
	if cfg.Engine.InMemory {
		t.Fatal("Engine.InMemory should default to false in dev")
	}
	if cfg.Engine.MemoryLimit != "16GB" || cfg.Engine.Threads != 4 {
		t.Fatalf("Engine limits = %q/%d", cfg.Engine.MemoryLimit, cfg.Engine.Threads)
	}
	if cfg.Jobs.MaxConcurrent != 8 {
		t.Fatalf("Jobs.MaxConcurrent = %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Results.DefaultPageSize != 100 || cfg.Results.MaxPageSize != 10000 {
		t.Fatalf("Results = %+v", cfg.Results)
	}
	if cfg.ObjectStore.Preflight {
		t.Fatal("ObjectStore.Preflight should default to false in dev")
	}
	if cfg.SourceCredentials.AccessKeyID != "" {
		t.Fatalf("SourceCredentials.AccessKeyID = %q", cfg.SourceCredentials.AccessKeyID)
	}
}

func TestLoadTestProfileUsesInMemoryCatalog(t *testing.T) {
	cfg, err := Load("duckserve-api", mapLookup(map[string]string{"DUCKSERVE_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Engine.InMemory {
		t.Fatal("Engine.InMemory should default to true in test")
	}
	if cfg.HTTP.Address != ":18080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("duckserve-api", mapLookup(map[string]string{"DUCKSERVE_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.Preflight {
		t.Fatal("ObjectStore.Preflight should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	cfg, err := Load("duckserve-api", mapLookup(map[string]string{
		"DUCKSERVE_SERVICE_NAME":              "duckserve-custom",
		"DUCKSERVE_HTTP_ADDR":                 ":9999",
		"DUCKSERVE_HTTP_READ_TIMEOUT":         "2s",
		"DUCKSERVE_ENGINE_CATALOG":            "analytics",
		"DUCKSERVE_ENGINE_DATA_DIR":           "/var/lib/duckserve",
		"DUCKSERVE_ENGINE_MEMORY_LIMIT":       "2GB",
		"DUCKSERVE_ENGINE_THREADS":            "2",
		"DUCKSERVE_JOBS_MAX_CONCURRENT":       "3",
		"DUCKSERVE_JOBS_SHUTDOWN_TIMEOUT":     "5s",
		"DUCKSERVE_RESULTS_DEFAULT_PAGE_SIZE": "50",
		"DUCKSERVE_RESULTS_MAX_PAGE_SIZE":     "500",
		"DUCKSERVE_OBJECTSTORE_ENDPOINT":      "localhost:9000",
		"DUCKSERVE_OBJECTSTORE_USE_SSL":       "false",
		"DUCKSERVE_OBJECTSTORE_URL_STYLE":     "path",
		"DUCKSERVE_OBJECTSTORE_PREFLIGHT":     "true",
		"AWS_ACCESS_KEY_ID":                   "env-key",
		"AWS_SECRET_ACCESS_KEY":               "env-secret",
		"AWS_SESSION_TOKEN":                   "env-token",
		"AWS_REGION":                          "eu-west-1",
		"DUCKSERVE_LOG_LEVEL":                 "error",
		"DUCKSERVE_LOG_JSON":                  "false",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "duckserve-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Engine.Catalog != "analytics" || cfg.Engine.DataDir != "/var/lib/duckserve" {
		t.Fatalf("Engine = %+v", cfg.Engine)
	}
	if cfg.Engine.MemoryLimit != "2GB" || cfg.Engine.Threads != 2 {
		t.Fatalf("Engine limits = %q/%d", cfg.Engine.MemoryLimit, cfg.Engine.Threads)
	}
	if cfg.Jobs.MaxConcurrent != 3 || cfg.Jobs.ShutdownTimeout != 5*time.Second {
		t.Fatalf("Jobs = %+v", cfg.Jobs)
	}
	if cfg.Results.DefaultPageSize != 50 || cfg.Results.MaxPageSize != 500 {
		t.Fatalf("Results = %+v", cfg.Results)
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" || cfg.ObjectStore.UseSSL || cfg.ObjectStore.URLStyle != "path" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if !cfg.ObjectStore.Preflight {
		t.Fatal("ObjectStore.Preflight = false, want true")
	}
	if cfg.SourceCredentials != (SourceCredentialsConfig{
		AccessKeyID:     "env-key",
		SecretAccessKey: "env-secret",
		SessionToken:    "env-token",
		Region:          "eu-west-1",
	}) {
		t.Fatalf("SourceCredentials = %+v", cfg.SourceCredentials)
	}
	if cfg.Observability.LogLevel != slog.LevelError || cfg.Observability.LogJSON {
		t.Fatalf("Observability = %+v", cfg.Observability)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "profile", env: map[string]string{"DUCKSERVE_PROFILE": "staging"}, wantErr: "DUCKSERVE_PROFILE"},
		{name: "duration", env: map[string]string{"DUCKSERVE_HTTP_READ_TIMEOUT": "soon"}, wantErr: "DUCKSERVE_HTTP_READ_TIMEOUT"},
		{name: "bool", env: map[string]string{"DUCKSERVE_ENGINE_IN_MEMORY": "maybe"}, wantErr: "DUCKSERVE_ENGINE_IN_MEMORY"},
		{name: "threads", env: map[string]string{"DUCKSERVE_ENGINE_THREADS": "0"}, wantErr: "DUCKSERVE_ENGINE_THREADS"},
		{name: "catalog", env: map[string]string{"DUCKSERVE_ENGINE_CATALOG": "bad name"}, wantErr: "DUCKSERVE_ENGINE_CATALOG"},
		{name: "page size bounds", env: map[string]string{"DUCKSERVE_RESULTS_MAX_PAGE_SIZE": "10"}, wantErr: "DUCKSERVE_RESULTS_MAX_PAGE_SIZE"},
		{name: "url style", env: map[string]string{"DUCKSERVE_OBJECTSTORE_URL_STYLE": "weird"}, wantErr: "DUCKSERVE_OBJECTSTORE_URL_STYLE"},
		{name: "log level", env: map[string]string{"DUCKSERVE_LOG_LEVEL": "loud"}, wantErr: "DUCKSERVE_LOG_LEVEL"},
		{name: "data dir", env: map[string]string{"DUCKSERVE_ENGINE_DATA_DIR": ""}, wantErr: "DUCKSERVE_ENGINE_DATA_DIR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load("duckserve-api", mapLookup(tc.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestLoadRequiresLookup(t *testing.T) {
	if _, err := Load("duckserve-api", nil); err == nil {
		t.Fatal("expected error for nil lookup")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
