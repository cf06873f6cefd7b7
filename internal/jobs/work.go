package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/duckserve/duckserve/internal/catalog"
	"github.com/duckserve/duckserve/internal/compose"
	"github.com/duckserve/duckserve/internal/credentials"
	"github.com/duckserve/duckserve/internal/engine"
)

type SourceProber interface {
	Probe(ctx context.Context, sources []string, creds credentials.Set) error
}

type Options struct {
	Catalog        string
	ObjectStore    compose.ObjectStoreOptions
	EnvCredentials credentials.Set
	// Prober is optional; when set, remote sources are checked before the
	// ingest statement runs.
	Prober SourceProber
}

// Work builds the job bodies. Registry entries are written only after the
// defining statement has returned successfully.
type Work struct {
	engine   engine.Engine
	registry *catalog.Registry
	opts     Options
}

func NewWork(eng engine.Engine, registry *catalog.Registry, opts Options) (*Work, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if strings.TrimSpace(opts.Catalog) == "" {
		return nil, fmt.Errorf("catalog is required")
	}
	return &Work{engine: eng, registry: registry, opts: opts}, nil
}

func (w *Work) Ingest(dataset catalog.Dataset) Func {
	return func(ctx context.Context) error {
		creds, _, err := credentials.Resolve(dataset.Credentials, w.opts.EnvCredentials)
		if err != nil {
			return err
		}
		if w.opts.Prober != nil {
			if err := w.opts.Prober.Probe(ctx, dataset.Sources, creds); err != nil {
				return err
			}
		}
		statements, err := compose.IngestStatements(dataset, creds, w.opts.ObjectStore)
		if err != nil {
			return err
		}
		if err := w.engine.WithSession(ctx, w.opts.Catalog, func(s engine.Session) error {
			return engine.ExecAll(ctx, s, statements)
		}); err != nil {
			return err
		}
		if _, err := w.registry.PutDataset(dataset); err != nil {
			return err
		}
		return nil
	}
}

func (w *Work) Query(view catalog.View) Func {
	return func(ctx context.Context) error {
		return w.materialize(ctx, view)
	}
}

// CreateView runs a query definition synchronously. It backs temporary views,
// which are never cached.
func (w *Work) CreateView(ctx context.Context, view catalog.View) error {
	view.Cached = false
	return w.materialize(ctx, view)
}

func (w *Work) materialize(ctx context.Context, view catalog.View) error {
	if _, err := w.registry.GetDataset(view.DatasetID); err != nil {
		return fmt.Errorf("dataset %s: %w", view.DatasetID, err)
	}
	statement, err := compose.QueryStatement(view.ID, view.Query, view.Cached)
	if err != nil {
		return err
	}
	if err := w.engine.WithSession(ctx, w.opts.Catalog, func(s engine.Session) error {
		return s.Exec(ctx, statement)
	}); err != nil {
		return err
	}
	if _, err := w.registry.PutView(view); err != nil {
		return err
	}
	return nil
}
