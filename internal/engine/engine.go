package engine

import "context"

type Result struct {
	Columns []string
	Rows    [][]any
}

// Session is a single connection scoped to one catalog. Statements run
// sequentially in the order they are issued.
type Session interface {
	Catalog() string
	Exec(ctx context.Context, statement string) error
	Query(ctx context.Context, statement string, args ...any) (Result, error)
}

// Engine hands out scoped sessions. The session is released when fn returns,
// whether it returns an error or panics.
type Engine interface {
	WithSession(ctx context.Context, catalog string, fn func(Session) error) error
}

// ExecAll runs statements in order and stops at the first failure.
func ExecAll(ctx context.Context, session Session, statements []string) error {
	for _, statement := range statements {
		if err := session.Exec(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}
