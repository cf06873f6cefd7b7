package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/duckserve/duckserve/internal/compose"
	"github.com/duckserve/duckserve/internal/engine"
)

var catalogNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

type Config struct {
	DataDir     string
	InMemory    bool
	MemoryLimit string
	Threads     int
}

// Engine wraps one embedded DuckDB instance. Catalogs are attached once and
// shared by every session; each session gets its own connection.
type Engine struct {
	db  *sql.DB
	cfg Config

	mu       sync.Mutex
	attached map[string]struct{}
}

func Open(cfg Config) (*Engine, error) {
	if !cfg.InMemory {
		if strings.TrimSpace(cfg.DataDir) == "" {
			return nil, fmt.Errorf("data dir is required")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// Connections are never returned to the pool, so SET SESSION values
	// die with the session that issued them.
	db.SetMaxIdleConns(0)
	return NewWithDB(db, cfg)
}

func NewWithDB(db *sql.DB, cfg Config) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if cfg.Threads < 0 {
		return nil, fmt.Errorf("threads must be >= 0")
	}
	return &Engine{db: db, cfg: cfg, attached: map[string]struct{}{}}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Attach(ctx context.Context, catalog string) error {
	if !catalogNamePattern.MatchString(catalog) {
		return fmt.Errorf("invalid catalog name: %q", catalog)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.attached[catalog]; ok {
		return nil
	}
	statement := fmt.Sprintf("ATTACH IF NOT EXISTS %s AS %s", compose.QuoteString(e.catalogPath(catalog)), compose.QuoteIdent(catalog))
	if _, err := e.db.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("attach catalog %q: %w", catalog, err)
	}
	e.attached[catalog] = struct{}{}
	return nil
}

func (e *Engine) WithSession(ctx context.Context, catalog string, fn func(engine.Session) error) (err error) {
	if err := e.Attach(ctx, catalog); err != nil {
		return err
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("release connection: %w", closeErr)
		}
	}()

	s := &session{conn: conn, catalog: catalog}
	for _, statement := range e.setupStatements(catalog) {
		if err := s.Exec(ctx, statement); err != nil {
			return fmt.Errorf("configure session: %w", err)
		}
	}
	return fn(s)
}

// Relations lists the tables and views already present in a catalog.
func (e *Engine) Relations(ctx context.Context, catalog string) (map[string]struct{}, error) {
	names := map[string]struct{}{}
	err := e.WithSession(ctx, catalog, func(s engine.Session) error {
		result, err := s.Query(ctx, `SELECT table_name FROM information_schema.tables WHERE table_catalog = ?`, catalog)
		if err != nil {
			return err
		}
		for _, row := range result.Rows {
			if name, ok := row[0].(string); ok {
				names[name] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	return names, nil
}

func (e *Engine) Ping(ctx context.Context, catalog string) error {
	return e.WithSession(ctx, catalog, func(s engine.Session) error {
		_, err := s.Query(ctx, "SELECT 1")
		return err
	})
}

func (e *Engine) catalogPath(catalog string) string {
	if e.cfg.InMemory {
		return ":memory:"
	}
	return filepath.Join(e.cfg.DataDir, catalog+".duckdb")
}

func (e *Engine) setupStatements(catalog string) []string {
	statements := []string{"USE " + compose.QuoteIdent(catalog)}
	if limit := strings.TrimSpace(e.cfg.MemoryLimit); limit != "" {
		statements = append(statements, "SET memory_limit = "+compose.QuoteString(limit))
	}
	if e.cfg.Threads > 0 {
		statements = append(statements, fmt.Sprintf("SET threads = %d", e.cfg.Threads))
	}
	return statements
}

type session struct {
	conn    *sql.Conn
	catalog string
}

func (s *session) Catalog() string {
	return s.catalog
}

func (s *session) Exec(ctx context.Context, statement string) error {
	if _, err := s.conn.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

func (s *session) Query(ctx context.Context, statement string, args ...any) (engine.Result, error) {
	rows, err := s.conn.QueryContext(ctx, statement, args...)
	if err != nil {
		return engine.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return engine.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return engine.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return engine.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return engine.Result{Columns: columns, Rows: resultRows}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = blobText(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

// blobText keeps UTF-8 bytes as text and renders anything else the way DuckDB
// casts a BLOB to VARCHAR: printable ASCII except backslash as-is, every
// other byte as \xHH.
func blobText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw) * 2)
	for _, c := range raw {
		if c >= 0x20 && c < 0x7f && c != '\\' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "\\x%02X", c)
	}
	return b.String()
}
