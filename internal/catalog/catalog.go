package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrExists   = errors.New("catalog: already registered")
)

type SourceType string

const (
	SourceCSV     SourceType = "csv"
	SourceParquet SourceType = "parquet"
)

func ParseSourceType(raw string) (SourceType, error) {
	switch SourceType(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceCSV:
		return SourceCSV, nil
	case SourceParquet:
		return SourceParquet, nil
	default:
		return "", fmt.Errorf("unsupported source_type %q: expected csv or parquet", raw)
	}
}

type Dataset struct {
	ID           string
	Sources      []string
	SourceType   SourceType
	Credentials  map[string]string
	RegisteredAt time.Time
}

// View describes a query result. Cached views are physical tables; the rest
// are named views re-evaluated on every read.
type View struct {
	ID        string
	DatasetID string
	Query     string
	Cached    bool
	CreatedAt time.Time
}

// Registry holds datasets and views that have been materialized in the
// engine catalog. Entries are immutable once written.
type Registry struct {
	mu       sync.RWMutex
	datasets map[string]Dataset
	views    map[string]View
	clock    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		datasets: map[string]Dataset{},
		views:    map[string]View{},
		clock:    time.Now,
	}
}

func (r *Registry) PutDataset(dataset Dataset) (Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameInUseLocked(dataset.ID) {
		return Dataset{}, fmt.Errorf("register dataset %q: %w", dataset.ID, ErrExists)
	}
	dataset.Sources = append([]string(nil), dataset.Sources...)
	dataset.Credentials = copyMap(dataset.Credentials)
	if dataset.RegisteredAt.IsZero() {
		dataset.RegisteredAt = r.clock().UTC()
	}
	r.datasets[dataset.ID] = dataset
	return dataset, nil
}

func (r *Registry) GetDataset(id string) (Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dataset, ok := r.datasets[id]
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return dataset, nil
}

func (r *Registry) ListDatasets() []Dataset {
	r.mu.RLock()
	out := make([]Dataset, 0, len(r.datasets))
	for _, dataset := range r.datasets {
		out = append(out, dataset)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return lessByTime(out[i].RegisteredAt, out[j].RegisteredAt, out[i].ID, out[j].ID)
	})
	return out
}

func (r *Registry) PutView(view View) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameInUseLocked(view.ID) {
		return View{}, fmt.Errorf("register view %q: %w", view.ID, ErrExists)
	}
	if view.CreatedAt.IsZero() {
		view.CreatedAt = r.clock().UTC()
	}
	r.views[view.ID] = view
	return view, nil
}

func (r *Registry) GetView(id string) (View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view, ok := r.views[id]
	if !ok {
		return View{}, ErrNotFound
	}
	return view, nil
}

func (r *Registry) ListViews() []View {
	r.mu.RLock()
	out := make([]View, 0, len(r.views))
	for _, view := range r.views {
		out = append(out, view)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return lessByTime(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

// Contains reports whether id names any registered dataset or view.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nameInUseLocked(id)
}

func (r *Registry) nameInUseLocked(id string) bool {
	if _, ok := r.datasets[id]; ok {
		return true
	}
	_, ok := r.views[id]
	return ok
}

func lessByTime(a, b time.Time, idA, idB string) bool {
	if a.Equal(b) {
		return idA < idB
	}
	return a.Before(b)
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
