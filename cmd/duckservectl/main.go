package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/duckserve/duckserve/internal/cli/duckservectl"
)

func main() {
	options := duckservectl.Options{
		BaseURL:      envOr("DUCKSERVE_API_URL", "http://localhost:8080"),
		Timeout:      parseDurationWithDefault("DUCKSERVE_CLI_TIMEOUT", 10*time.Second),
		PollInterval: parseDurationWithDefault("DUCKSERVE_CLI_POLL_INTERVAL", 500*time.Millisecond),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}

	code := duckservectl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid %s %q; using %s\n", key, raw, fallback)
		return fallback
	}
	return parsed
}
