package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duckserve/duckserve/internal/catalog"
	"github.com/duckserve/duckserve/internal/compose"
	"github.com/duckserve/duckserve/internal/ids"
	"github.com/duckserve/duckserve/internal/jobs"
	"github.com/duckserve/duckserve/internal/observability"
	"github.com/duckserve/duckserve/internal/results"
	"github.com/duckserve/duckserve/internal/tasks"
)

type Dependencies struct {
	Logger          *slog.Logger
	IDs             *ids.Generator
	Ledger          *tasks.Ledger
	Registry        *catalog.Registry
	Runner          *jobs.Runner
	Work            *jobs.Work
	Paginator       *results.Paginator
	DefaultPageSize int
	MaxPageSize     int
}

type RegisterRequest struct {
	Sources        []string
	SourceType     string
	ConnectionAttr map[string]string
}

type QueryRequest struct {
	DatasetID   string
	CacheResult bool
	Query       string
}

type ViewRequest struct {
	DatasetID string
	Query     string
}

// ResultsRequest selects a page of a dataset or view. ViewID wins when both
// ids are set; a nil PageSize means the configured default.
type ResultsRequest struct {
	ViewID    string
	DatasetID string
	PageIndex int
	PageSize  *int
}

type Accepted struct {
	TaskID   string
	TargetID string
}

type Service struct {
	logger          *slog.Logger
	ids             *ids.Generator
	ledger          *tasks.Ledger
	registry        *catalog.Registry
	runner          *jobs.Runner
	work            *jobs.Work
	paginator       *results.Paginator
	defaultPageSize int
	maxPageSize     int
}

func New(deps Dependencies) (*Service, error) {
	switch {
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("task ledger is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("registry is required")
	case deps.Runner == nil:
		return nil, fmt.Errorf("job runner is required")
	case deps.Work == nil:
		return nil, fmt.Errorf("job work is required")
	case deps.Paginator == nil:
		return nil, fmt.Errorf("paginator is required")
	}
	if deps.DefaultPageSize <= 0 || deps.MaxPageSize < deps.DefaultPageSize {
		return nil, fmt.Errorf("page sizes must satisfy 0 < default <= max")
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Service{
		logger:          logger,
		ids:             deps.IDs,
		ledger:          deps.Ledger,
		registry:        deps.Registry,
		runner:          deps.Runner,
		work:            deps.Work,
		paginator:       deps.Paginator,
		defaultPageSize: deps.DefaultPageSize,
		maxPageSize:     deps.MaxPageSize,
	}, nil
}

func (s *Service) RegisterDataset(_ context.Context, request RegisterRequest) (Accepted, error) {
	sourceType, err := catalog.ParseSourceType(request.SourceType)
	if err != nil {
		return Accepted{}, &ValidationError{Field: "source_type", Message: err.Error()}
	}
	if err := compose.ValidateSources(request.Sources); err != nil {
		return Accepted{}, &ValidationError{Field: "sources", Message: err.Error()}
	}

	datasetID, err := s.ids.New()
	if err != nil {
		return Accepted{}, err
	}
	taskID, err := s.ids.New()
	if err != nil {
		return Accepted{}, err
	}

	sources := make([]string, 0, len(request.Sources))
	for _, source := range request.Sources {
		sources = append(sources, strings.TrimSpace(source))
	}
	dataset := catalog.Dataset{
		ID:          datasetID,
		Sources:     sources,
		SourceType:  sourceType,
		Credentials: request.ConnectionAttr,
	}
	if _, err := s.runner.Submit(taskID, tasks.KindIngest, datasetID, s.work.Ingest(dataset)); err != nil {
		return Accepted{}, fmt.Errorf("submit ingest job: %w", err)
	}
	return Accepted{TaskID: taskID, TargetID: datasetID}, nil
}

func (s *Service) ExecuteQuery(_ context.Context, request QueryRequest) (Accepted, error) {
	datasetID, query, err := s.validateQuery(request.DatasetID, request.Query)
	if err != nil {
		return Accepted{}, err
	}

	viewID, err := s.ids.New()
	if err != nil {
		return Accepted{}, err
	}
	taskID, err := s.ids.New()
	if err != nil {
		return Accepted{}, err
	}

	view := catalog.View{ID: viewID, DatasetID: datasetID, Query: query, Cached: request.CacheResult}
	if _, err := s.runner.Submit(taskID, tasks.KindQuery, viewID, s.work.Query(view)); err != nil {
		return Accepted{}, fmt.Errorf("submit query job: %w", err)
	}
	return Accepted{TaskID: taskID, TargetID: viewID}, nil
}

// CreateTemporaryView defines an uncached view synchronously, without a task.
func (s *Service) CreateTemporaryView(ctx context.Context, request ViewRequest) (string, error) {
	datasetID, query, err := s.validateQuery(request.DatasetID, request.Query)
	if err != nil {
		return "", err
	}
	viewID, err := s.ids.New()
	if err != nil {
		return "", err
	}
	view := catalog.View{ID: viewID, DatasetID: datasetID, Query: query}
	if err := s.work.CreateView(ctx, view); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return "", &NotFoundError{Kind: "dataset", ID: datasetID}
		}
		return "", &ExecutionError{Err: err}
	}
	s.logger.Info("temporary view created", "view_id", viewID, "dataset_id", datasetID)
	return viewID, nil
}

// TaskStatus never fails; ids that were never issued report StateUnknown.
func (s *Service) TaskStatus(taskID string) tasks.Task {
	task, _ := s.ledger.Get(taskID)
	return task
}

func (s *Service) Results(ctx context.Context, request ResultsRequest) (results.Page, error) {
	targetID, targetKind, err := s.resolveTarget(request.ViewID, request.DatasetID)
	if err != nil {
		return results.Page{}, err
	}
	if request.PageIndex < 0 {
		return results.Page{}, &ValidationError{Field: "page_index", Message: "must be >= 0"}
	}
	pageSize := s.defaultPageSize
	if request.PageSize != nil {
		pageSize = *request.PageSize
	}
	if pageSize <= 0 || pageSize > s.maxPageSize {
		return results.Page{}, &ValidationError{Field: "page_size", Message: fmt.Sprintf("must be between 1 and %d", s.maxPageSize)}
	}

	page, err := s.paginator.Page(ctx, targetID, request.PageIndex, pageSize)
	if err != nil {
		return results.Page{}, fmt.Errorf("read %s %s: %w", targetKind, targetID, err)
	}
	observability.ObserveResultPage(targetKind, len(page.Data))
	return page, nil
}

func (s *Service) ListDatasets() []catalog.Dataset {
	return s.registry.ListDatasets()
}

func (s *Service) ListViews() []catalog.View {
	return s.registry.ListViews()
}

func (s *Service) validateQuery(datasetID, query string) (string, string, error) {
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return "", "", &ValidationError{Field: "dataset_id", Message: "is required"}
	}
	query = compose.StripTrailingSemicolons(query)
	if query == "" {
		return "", "", &ValidationError{Field: "query", Message: "is required"}
	}
	if _, err := s.registry.GetDataset(datasetID); err != nil {
		return "", "", &NotFoundError{Kind: "dataset", ID: datasetID}
	}
	return datasetID, query, nil
}

func (s *Service) resolveTarget(viewID, datasetID string) (string, string, error) {
	viewID = strings.TrimSpace(viewID)
	datasetID = strings.TrimSpace(datasetID)
	switch {
	case viewID != "":
		if _, err := s.registry.GetView(viewID); err != nil {
			return "", "", &NotFoundError{Kind: "view", ID: viewID}
		}
		return viewID, "view", nil
	case datasetID != "":
		if _, err := s.registry.GetDataset(datasetID); err != nil {
			return "", "", &NotFoundError{Kind: "dataset", ID: datasetID}
		}
		return datasetID, "dataset", nil
	default:
		return "", "", &ValidationError{Field: "view_id", Message: "view_id or dataset_id is required"}
	}
}
