package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const s3Scheme = "s3://"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return s3Scheme + l.Bucket + "/" + l.Key
}

// IsRemote reports whether a dataset source points at object storage.
func IsRemote(source string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(source)), s3Scheme)
}

// HasGlob reports whether a source uses the engine's glob syntax and so names
// more than one object.
func HasGlob(source string) bool {
	return strings.ContainsAny(source, "*?[{")
}

func ParseLocation(raw string) (Location, error) {
	trimmed := strings.TrimSpace(raw)
	if !IsRemote(trimmed) {
		return Location{}, fmt.Errorf("not an s3 location: %q", raw)
	}
	rest := trimmed[len(s3Scheme):]
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" {
		return Location{}, fmt.Errorf("s3 location %q has no bucket", raw)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return Location{}, fmt.Errorf("s3 location %q has no key", raw)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// BuildSeedObjectKey places generated files under
// <prefix>/date=YYYY-MM-DD/<name>-<unix>.<format>.
func BuildSeedObjectKey(prefix, name, format string, at time.Time) (string, error) {
	if err := validatePathComponent(name, "object name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(format, "format"); err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		for _, component := range strings.Split(prefix, "/") {
			if err := validatePathComponent(component, "prefix component"); err != nil {
				return "", err
			}
		}
	}

	ts := at.UTC()
	return path.Join(
		prefix,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s-%d.%s", name, ts.Unix(), format),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
