package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/duckserve/duckserve/internal/credentials"
	"github.com/duckserve/duckserve/internal/storage"
)

// Prober checks that s3:// sources exist before the engine is asked to read
// them. Local paths and glob patterns are left to the engine.
type Prober struct {
	base     Config
	newStore func(Config) (storage.ObjectStore, error)
}

func NewProber(base Config) *Prober {
	return &Prober{
		base: base,
		newStore: func(cfg Config) (storage.ObjectStore, error) {
			return New(cfg)
		},
	}
}

func (p *Prober) Probe(ctx context.Context, sources []string, creds credentials.Set) error {
	var store storage.ObjectStore
	for _, source := range sources {
		if !storage.IsRemote(source) || storage.HasGlob(source) {
			continue
		}
		loc, err := storage.ParseLocation(source)
		if err != nil {
			return err
		}
		if store == nil {
			store, err = p.newStore(p.configFor(creds))
			if err != nil {
				return err
			}
		}
		if _, err := store.Stat(ctx, loc); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return fmt.Errorf("source not found: %s", strings.TrimSpace(source))
			}
			return fmt.Errorf("probe source %s: %w", strings.TrimSpace(source), err)
		}
	}
	return nil
}

func (p *Prober) configFor(creds credentials.Set) Config {
	cfg := p.base
	cfg.AccessKeyID = creds.AccessKeyID
	cfg.SecretAccessKey = creds.SecretAccessKey
	cfg.SessionToken = creds.SessionToken
	if creds.Region != "" {
		cfg.Region = creds.Region
	}
	return cfg
}
