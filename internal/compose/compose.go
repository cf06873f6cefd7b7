// Package compose renders engine statements for ingestion and query jobs.
// It performs no I/O. Identifiers generated by the service are always
// quoted; source locations are always emitted as string literals; query
// bodies supplied by clients are passed through and left to the engine's
// own parser.
package compose

import (
	"fmt"
	"strings"

	"github.com/duckserve/duckserve/internal/catalog"
	"github.com/duckserve/duckserve/internal/credentials"
	"github.com/duckserve/duckserve/internal/storage"
)

type ObjectStoreOptions struct {
	Endpoint string
	UseSSL   bool
	URLStyle string
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func QuoteStringList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, QuoteString(value))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// CredentialStatements emits session settings in a fixed order: region,
// access key, secret key, session token, then endpoint overrides. Empty
// values are skipped.
func CredentialStatements(creds credentials.Set, store ObjectStoreOptions) []string {
	statements := make([]string, 0, 7)
	add := func(name, value string) {
		if value == "" {
			return
		}
		statements = append(statements, fmt.Sprintf("SET SESSION %s = %s", name, QuoteString(value)))
	}
	add("s3_region", creds.Region)
	add("s3_access_key_id", creds.AccessKeyID)
	add("s3_secret_access_key", creds.SecretAccessKey)
	add("s3_session_token", creds.SessionToken)

	if endpoint := strings.TrimSpace(store.Endpoint); endpoint != "" {
		add("s3_endpoint", endpoint)
		statements = append(statements, fmt.Sprintf("SET SESSION s3_use_ssl = %t", store.UseSSL))
		add("s3_url_style", store.URLStyle)
	}
	return statements
}

func ValidateSources(sources []string) error {
	if len(sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for i, source := range sources {
		trimmed := strings.TrimSpace(source)
		if trimmed == "" {
			return fmt.Errorf("sources[%d] is empty", i)
		}
		if strings.ContainsAny(source, "\x00\r\n") {
			return fmt.Errorf("sources[%d] contains control characters", i)
		}
		if strings.Trim(trimmed, ";") == "" {
			return fmt.Errorf("sources[%d] is not a location", i)
		}
	}
	return nil
}

func SourceReader(sourceType catalog.SourceType, sources []string) (string, error) {
	if err := ValidateSources(sources); err != nil {
		return "", err
	}
	switch sourceType {
	case catalog.SourceCSV:
		return fmt.Sprintf("read_csv_auto(%s, header = true)", QuoteStringList(sources)), nil
	case catalog.SourceParquet:
		return fmt.Sprintf("read_parquet(%s)", QuoteStringList(sources)), nil
	default:
		return "", fmt.Errorf("unsupported source_type %q", sourceType)
	}
}

// IngestStatements returns the credential settings followed by exactly one
// CREATE TABLE statement materializing the dataset under its id. Credential
// settings are emitted only when at least one source is an s3:// location.
func IngestStatements(dataset catalog.Dataset, creds credentials.Set, store ObjectStoreOptions) ([]string, error) {
	if strings.TrimSpace(dataset.ID) == "" {
		return nil, fmt.Errorf("dataset id is required")
	}
	reader, err := SourceReader(dataset.SourceType, dataset.Sources)
	if err != nil {
		return nil, err
	}
	var statements []string
	if anyRemote(dataset.Sources) {
		statements = CredentialStatements(creds, store)
	}
	statements = append(statements, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", QuoteIdent(dataset.ID), reader))
	return statements, nil
}

// anyRemote gates the s3 settings: setting them makes DuckDB load httpfs,
// which local-only ingests must not depend on.
func anyRemote(sources []string) bool {
	for _, source := range sources {
		if storage.IsRemote(source) {
			return true
		}
	}
	return false
}

func QueryStatement(id, body string, cache bool) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("result id is required")
	}
	body = StripTrailingSemicolons(body)
	if body == "" {
		return "", fmt.Errorf("query is required")
	}
	kind := "VIEW"
	if cache {
		kind = "TABLE"
	}
	return fmt.Sprintf("CREATE %s %s AS (%s)", kind, QuoteIdent(id), body), nil
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
