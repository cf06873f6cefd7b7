package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/duckserve/duckserve/internal/storage"
)

type Uploader interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, loc storage.Location, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error)
}

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	uploader  Uploader
	generator *Generator
	now       func() time.Time
}

type Summary struct {
	Source     string
	DatasetID  string
	ViewID     string
	TotalCount int64
	Page       json.RawMessage
}

type registerRequest struct {
	Sources    []string `json:"sources"`
	SourceType string   `json:"source_type"`
}

type registerResponse struct {
	TaskID    string `json:"task_id"`
	DatasetID string `json:"dataset_id"`
}

type queryRequest struct {
	DatasetID   string `json:"dataset_id"`
	CacheResult bool   `json:"cache_result"`
	Query       string `json:"query"`
}

type queryResponse struct {
	TaskID string `json:"task_id"`
	ViewID string `json:"view_id"`
}

type taskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client, uploader Uploader) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("rows must be > 0")
	}
	if cfg.Uploads() && uploader == nil {
		return nil, fmt.Errorf("uploader is required when a bucket is configured")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		uploader:  uploader,
		generator: NewGenerator(cfg.Seed, cfg.UserCardinality),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) Run(ctx context.Context) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	path, err := WriteFile(s.cfg.OutputDir, s.cfg.Name, s.cfg.Format, s.generator.Events(s.cfg.Rows))
	if err != nil {
		return Summary{}, err
	}
	s.log.Info("seed file written", slog.String("path", path), slog.Int("rows", s.cfg.Rows), slog.String("format", s.cfg.Format))

	source := path
	if s.cfg.Uploads() {
		source, err = s.upload(ctx, path)
		if err != nil {
			return Summary{}, err
		}
	}

	summary := Summary{Source: source}
	var registered registerResponse
	if err := s.post(ctx, "/register-dataset", registerRequest{Sources: []string{source}, SourceType: s.cfg.Format}, &registered); err != nil {
		return summary, fmt.Errorf("register dataset: %w", err)
	}
	summary.DatasetID = registered.DatasetID
	s.log.Info("dataset registration accepted", slog.String("task_id", registered.TaskID), slog.String("dataset_id", registered.DatasetID))
	if err := s.waitForTask(ctx, registered.TaskID); err != nil {
		return summary, err
	}

	values := url.Values{}
	values.Set("dataset_id", summary.DatasetID)
	if strings.TrimSpace(s.cfg.Query) != "" {
		query := strings.ReplaceAll(s.cfg.Query, "{dataset}", summary.DatasetID)
		var accepted queryResponse
		if err := s.post(ctx, "/execute-query", queryRequest{DatasetID: summary.DatasetID, Query: query}, &accepted); err != nil {
			return summary, fmt.Errorf("execute query: %w", err)
		}
		summary.ViewID = accepted.ViewID
		s.log.Info("query accepted", slog.String("task_id", accepted.TaskID), slog.String("view_id", accepted.ViewID))
		if err := s.waitForTask(ctx, accepted.TaskID); err != nil {
			return summary, err
		}
		values = url.Values{}
		values.Set("view_id", summary.ViewID)
	}
	values.Set("page_index", "0")
	values.Set("page_size", strconv.Itoa(s.cfg.PageSize))

	status, body, err := s.doJSON(ctx, http.MethodGet, "/query-results?"+values.Encode(), nil, nil)
	if err != nil {
		return summary, fmt.Errorf("fetch results: %w", err)
	}
	if status != http.StatusOK {
		return summary, fmt.Errorf("fetch results status %d: %s", status, strings.TrimSpace(string(body)))
	}
	var page struct {
		TotalCount int64 `json:"totalCount"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return summary, fmt.Errorf("decode results: %w", err)
	}
	summary.TotalCount = page.TotalCount
	summary.Page = json.RawMessage(body)
	s.log.Info("seed results fetched", slog.String("dataset_id", summary.DatasetID), slog.String("view_id", summary.ViewID), slog.Int64("total_count", page.TotalCount))
	return summary, nil
}

func (s *Service) upload(ctx context.Context, path string) (string, error) {
	key, err := storage.BuildSeedObjectKey(s.cfg.Upload.KeyPrefix, s.cfg.Name, s.cfg.Format, s.now())
	if err != nil {
		return "", fmt.Errorf("build object key: %w", err)
	}
	loc := storage.Location{Bucket: s.cfg.Upload.Bucket, Key: key}

	if err := s.uploader.EnsureBucket(ctx, loc.Bucket); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat seed file: %w", err)
	}
	if _, err := s.uploader.Put(ctx, loc, file, info.Size(), storage.PutOptions{ContentType: contentType(s.cfg.Format)}); err != nil {
		return "", fmt.Errorf("upload seed file: %w", err)
	}
	s.log.Info("seed file uploaded", slog.String("location", loc.String()), slog.Int64("size_bytes", info.Size()))
	return loc.String(), nil
}

func (s *Service) waitForTask(ctx context.Context, taskID string) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var task taskResponse
		status, body, err := s.doJSON(ctx, http.MethodGet, "/task-status/"+url.PathEscape(taskID), nil, &task)
		if err != nil {
			return fmt.Errorf("poll task %s: %w", taskID, err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("poll task %s status %d: %s", taskID, status, strings.TrimSpace(string(body)))
		}
		switch {
		case task.Status == "completed":
			return nil
		case strings.HasPrefix(task.Status, "failed"):
			return fmt.Errorf("task %s %s", taskID, task.Status)
		case task.Status == "unknown":
			return fmt.Errorf("task %s is unknown to the api", taskID)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Service) post(ctx context.Context, path string, requestBody, responseBody any) error {
	status, body, err := s.doJSON(ctx, http.MethodPost, path, requestBody, responseBody)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted {
		return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

func (s *Service) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) (int, []byte, error) {
	var payload io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	if responseBody != nil && resp.StatusCode < 400 && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}
