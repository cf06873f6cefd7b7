package credentials

import (
	"strings"
	"testing"
)

func TestResolvePrefersExplicitCredentials(t *testing.T) {
	env := Set{AccessKeyID: "env-key", SecretAccessKey: "env-secret", SessionToken: "env-token", Region: "eu-west-1"}
	attrs := map[string]string{
		KeyAccessKeyID:     "req-key",
		KeySecretAccessKey: "req-secret",
		KeySessionToken:    "req-token",
		KeyRegion:          "us-west-2",
	}

	got, source, err := Resolve(attrs, env)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if source != SourceRequest {
		t.Fatalf("source = %q", source)
	}
	want := Set{AccessKeyID: "req-key", SecretAccessKey: "req-secret", SessionToken: "req-token", Region: "us-west-2"}
	if got != want {
		t.Fatalf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolveMarkerRequiresAllKeys(t *testing.T) {
	attrs := map[string]string{
		KeyAccessKeyID:     "req-key",
		KeySecretAccessKey: "req-secret",
		KeyRegion:          " ",
	}
	_, _, err := Resolve(attrs, Set{AccessKeyID: "env-key"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), KeyRegion) || !strings.Contains(err.Error(), KeySessionToken) {
		t.Fatalf("error = %v", err)
	}
	if strings.Contains(err.Error(), KeySecretAccessKey) {
		t.Fatalf("error lists a key that was supplied: %v", err)
	}
}

func TestResolveFallsBackToEnvironment(t *testing.T) {
	env := Set{AccessKeyID: "env-key", SecretAccessKey: "env-secret"}
	got, source, err := Resolve(map[string]string{KeyRegion: "ignored-without-marker"}, env)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if source != SourceEnvironment || got != env {
		t.Fatalf("Resolve() = %+v (%s)", got, source)
	}
}

func TestResolveWithoutAnyCredentials(t *testing.T) {
	got, source, err := Resolve(nil, Set{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if source != SourceNone || !got.Empty() {
		t.Fatalf("Resolve() = %+v (%s)", got, source)
	}
}
