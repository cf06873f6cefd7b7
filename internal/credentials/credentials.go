package credentials

import (
	"fmt"
	"strings"
)

// Keys accepted in a registration request's connection_attr.
const (
	KeyAccessKeyID     = "aws_access_key_id"
	KeySecretAccessKey = "aws_secret_access_key"
	KeySessionToken    = "aws_session_token"
	KeyRegion          = "aws_region"

	// MarkerKey switches a request to explicit credentials; once present,
	// every key in RequiredKeys must be supplied.
	MarkerKey = KeyAccessKeyID
)

var RequiredKeys = []string{KeyRegion, KeyAccessKeyID, KeySecretAccessKey, KeySessionToken}

type Source string

const (
	SourceRequest     Source = "request"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

type Set struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func (s Set) Empty() bool {
	return s == Set{}
}

// Resolve applies precedence: explicit request attributes carrying the
// marker key, then the environment fallback, then nothing.
func Resolve(attrs map[string]string, env Set) (Set, Source, error) {
	if _, ok := attrs[MarkerKey]; ok {
		missing := make([]string, 0, len(RequiredKeys))
		for _, key := range RequiredKeys {
			if strings.TrimSpace(attrs[key]) == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return Set{}, SourceNone, fmt.Errorf("missing connection_attr keys: %s", strings.Join(missing, ", "))
		}
		return Set{
			Region:          strings.TrimSpace(attrs[KeyRegion]),
			AccessKeyID:     strings.TrimSpace(attrs[KeyAccessKeyID]),
			SecretAccessKey: strings.TrimSpace(attrs[KeySecretAccessKey]),
			SessionToken:    strings.TrimSpace(attrs[KeySessionToken]),
		}, SourceRequest, nil
	}

	if env.AccessKeyID != "" {
		return env, SourceEnvironment, nil
	}
	return Set{}, SourceNone, nil
}
