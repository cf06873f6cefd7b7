package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/duckserve/duckserve/internal/catalog"
	"github.com/duckserve/duckserve/internal/engine/duckdb"
	"github.com/duckserve/duckserve/internal/ids"
	"github.com/duckserve/duckserve/internal/jobs"
	"github.com/duckserve/duckserve/internal/observability"
	"github.com/duckserve/duckserve/internal/results"
	"github.com/duckserve/duckserve/internal/tasks"
)

type harness struct {
	svc      *Service
	ledger   *tasks.Ledger
	registry *catalog.Registry
	runner   *jobs.Runner
}

func TestRegisterDatasetCompletesAndPages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	csvPath := writeCSV(t, "id,name\n1,alpha\n2,beta\n3,gamma\n")

	accepted, err := h.svc.RegisterDataset(ctx, RegisterRequest{Sources: []string{csvPath}, SourceType: "CSV"})
	if err != nil {
		t.Fatalf("RegisterDataset() error = %v", err)
	}
	if accepted.TaskID == "" || accepted.TargetID == "" || accepted.TaskID == accepted.TargetID {
		t.Fatalf("Accepted = %+v", accepted)
	}
	h.wait(t)

	if status := h.svc.TaskStatus(accepted.TaskID).Status(); status != "completed" {
		t.Fatalf("status = %q", status)
	}
	size := 2
	page, err := h.svc.Results(ctx, ResultsRequest{DatasetID: accepted.TargetID, PageSize: &size})
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(page.Data) != 2 || page.TotalCount != 3 {
		t.Fatalf("page = %+v", page)
	}
	if len(page.Columns) != 2 || page.Columns[0].Name != "id" || page.Columns[1].Name != "name" {
		t.Fatalf("columns = %+v", page.Columns)
	}
}

func TestRegisterDatasetFailureKeepsDatasetInvisible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	accepted, err := h.svc.RegisterDataset(ctx, RegisterRequest{
		Sources:    []string{filepath.Join(t.TempDir(), "absent.csv")},
		SourceType: "csv",
	})
	if err != nil {
		t.Fatalf("RegisterDataset() error = %v", err)
	}
	h.wait(t)

	task := h.svc.TaskStatus(accepted.TaskID)
	if task.State != tasks.StateFailed || !strings.HasPrefix(task.Status(), "failed: ") {
		t.Fatalf("task = %+v", task)
	}
	_, err = h.svc.Results(ctx, ResultsRequest{DatasetID: accepted.TargetID})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) || notFound.Kind != "dataset" {
		t.Fatalf("Results() error = %v, want dataset NotFoundError", err)
	}
}

func TestRegisterDatasetValidation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name      string
		request   RegisterRequest
		wantField string
	}{
		{name: "unsupported type", request: RegisterRequest{Sources: []string{"a.json"}, SourceType: "json"}, wantField: "source_type"},
		{name: "missing type", request: RegisterRequest{Sources: []string{"a.csv"}}, wantField: "source_type"},
		{name: "no sources", request: RegisterRequest{SourceType: "csv"}, wantField: "sources"},
		{name: "blank source", request: RegisterRequest{Sources: []string{"  "}, SourceType: "parquet"}, wantField: "sources"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.RegisterDataset(context.Background(), tc.request)
			var validation *ValidationError
			if !errors.As(err, &validation) || validation.Field != tc.wantField {
				t.Fatalf("RegisterDataset() error = %v, want ValidationError on %s", err, tc.wantField)
			}
		})
	}
	if n := len(h.ledger.List()); n != 0 {
		t.Fatalf("tasks created = %d, want 0", n)
	}
}

func TestExecuteQueryUnknownDatasetCreatesNoTask(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ExecuteQuery(context.Background(), QueryRequest{DatasetID: "nope", Query: "SELECT 1"})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("ExecuteQuery() error = %v, want ErrNotFound", err)
	}
	if n := len(h.ledger.List()); n != 0 {
		t.Fatalf("tasks created = %d, want 0", n)
	}
}

func TestExecuteQueryCachedAndFailing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	datasetID := h.registerCSV(t, "id,amount\n1,10\n2,20\n3,30\n")

	ok, err := h.svc.ExecuteQuery(ctx, QueryRequest{
		DatasetID:   datasetID,
		CacheResult: true,
		Query:       `SELECT SUM(amount) AS total FROM "` + datasetID + `";`,
	})
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	bad, err := h.svc.ExecuteQuery(ctx, QueryRequest{
		DatasetID: datasetID,
		Query:     `SELECT missing_column FROM "` + datasetID + `"`,
	})
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	h.wait(t)

	if status := h.svc.TaskStatus(ok.TaskID).Status(); status != "completed" {
		t.Fatalf("cached query status = %q", status)
	}
	page, err := h.svc.Results(ctx, ResultsRequest{ViewID: ok.TargetID})
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if page.TotalCount != 1 || len(page.Data) != 1 || page.Columns[0].Name != "total" {
		t.Fatalf("page = %+v", page)
	}

	status := h.svc.TaskStatus(bad.TaskID).Status()
	if !strings.HasPrefix(status, "failed: ") || !strings.Contains(status, "missing_column") {
		t.Fatalf("failing query status = %q", status)
	}
	if h.registry.Contains(bad.TargetID) {
		t.Fatal("failed view must not be registered")
	}
}

func TestCreateTemporaryView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	datasetID := h.registerCSV(t, "id\n1\n2\n")

	viewID, err := h.svc.CreateTemporaryView(ctx, ViewRequest{DatasetID: datasetID, Query: `SELECT id * 2 AS doubled FROM "` + datasetID + `"`})
	if err != nil {
		t.Fatalf("CreateTemporaryView() error = %v", err)
	}
	page, err := h.svc.Results(ctx, ResultsRequest{ViewID: viewID})
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("TotalCount = %d", page.TotalCount)
	}

	_, err = h.svc.CreateTemporaryView(ctx, ViewRequest{DatasetID: datasetID, Query: "SELEC broken"})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("CreateTemporaryView() error = %v, want ExecutionError", err)
	}
	_, err = h.svc.CreateTemporaryView(ctx, ViewRequest{DatasetID: "ghost", Query: "SELECT 1"})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("CreateTemporaryView() error = %v, want ErrNotFound", err)
	}
}

func TestResultsSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	datasetID := h.registerCSV(t, "id\n1\n2\n3\n4\n")
	viewID, err := h.svc.CreateTemporaryView(ctx, ViewRequest{DatasetID: datasetID, Query: `SELECT * FROM "` + datasetID + `" WHERE id > 3`})
	if err != nil {
		t.Fatalf("CreateTemporaryView() error = %v", err)
	}

	page, err := h.svc.Results(ctx, ResultsRequest{ViewID: viewID, DatasetID: datasetID})
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if page.TotalCount != 1 {
		t.Fatalf("view_id should win; TotalCount = %d", page.TotalCount)
	}

	if _, err := h.svc.Results(ctx, ResultsRequest{}); !isValidation(err, "view_id") {
		t.Fatalf("Results() without ids error = %v", err)
	}
	if _, err := h.svc.Results(ctx, ResultsRequest{ViewID: "ghost"}); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("Results() unknown view error = %v", err)
	}
	if _, err := h.svc.Results(ctx, ResultsRequest{DatasetID: datasetID, PageIndex: -1}); !isValidation(err, "page_index") {
		t.Fatalf("Results() negative index error = %v", err)
	}
	for _, size := range []int{0, -5, 1001} {
		size := size
		if _, err := h.svc.Results(ctx, ResultsRequest{DatasetID: datasetID, PageSize: &size}); !isValidation(err, "page_size") {
			t.Fatalf("Results() size %d error = %v", size, err)
		}
	}

	page, err = h.svc.Results(ctx, ResultsRequest{DatasetID: datasetID, PageIndex: 7})
	if err != nil {
		t.Fatalf("Results() beyond end error = %v", err)
	}
	if len(page.Data) != 0 || page.TotalCount != 4 || page.PageSize != 10 {
		t.Fatalf("page = %+v", page)
	}
}

func TestTaskStatusUnknown(t *testing.T) {
	h := newHarness(t)
	task := h.svc.TaskStatus("never-issued")
	if task.Status() != "unknown" {
		t.Fatalf("Status() = %q", task.Status())
	}
}

func TestListings(t *testing.T) {
	h := newHarness(t)
	datasetID := h.registerCSV(t, "id\n1\n")
	if _, err := h.svc.CreateTemporaryView(context.Background(), ViewRequest{DatasetID: datasetID, Query: `SELECT * FROM "` + datasetID + `"`}); err != nil {
		t.Fatalf("CreateTemporaryView() error = %v", err)
	}
	if datasets := h.svc.ListDatasets(); len(datasets) != 1 || datasets[0].ID != datasetID {
		t.Fatalf("ListDatasets() = %+v", datasets)
	}
	if views := h.svc.ListViews(); len(views) != 1 || views[0].DatasetID != datasetID {
		t.Fatalf("ListViews() = %+v", views)
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	eng, err := duckdb.Open(duckdb.Config{InMemory: true, MemoryLimit: "1GB", Threads: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	logger := observability.DiscardLogger()
	ledger := tasks.NewLedger()
	registry := catalog.NewRegistry()
	runner, err := jobs.NewRunner(ledger, logger, 4)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	work, err := jobs.NewWork(eng, registry, jobs.Options{Catalog: "duckserve"})
	if err != nil {
		t.Fatalf("NewWork() error = %v", err)
	}
	svc, err := New(Dependencies{
		Logger:          logger,
		IDs:             ids.NewGenerator().WithTaken(registry.Contains),
		Ledger:          ledger,
		Registry:        registry,
		Runner:          runner,
		Work:            work,
		Paginator:       results.NewPaginator(eng, "duckserve"),
		DefaultPageSize: 10,
		MaxPageSize:     1000,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &harness{svc: svc, ledger: ledger, registry: registry, runner: runner}
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.runner.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func (h *harness) registerCSV(t *testing.T, body string) string {
	t.Helper()
	accepted, err := h.svc.RegisterDataset(context.Background(), RegisterRequest{Sources: []string{writeCSV(t, body)}, SourceType: "csv"})
	if err != nil {
		t.Fatalf("RegisterDataset() error = %v", err)
	}
	h.wait(t)
	if status := h.svc.TaskStatus(accepted.TaskID).Status(); status != "completed" {
		t.Fatalf("ingest status = %q", status)
	}
	return accepted.TargetID
}

func isValidation(err error, field string) bool {
	var validation *ValidationError
	return errors.As(err, &validation) && validation.Field == field
}

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
