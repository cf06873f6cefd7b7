package duckservectl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	HTTPClient   *http.Client
	Stdout       io.Writer
	Stderr       io.Writer
}

type session struct {
	client  *http.Client
	baseURL string
	stdout  io.Writer
	stderr  io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("duckservectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "duckserve API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	pollInterval := fs.Duration("poll-interval", durationOr(defaults.PollInterval, 500*time.Millisecond), "task polling interval for wait")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	s := &session{client: client, baseURL: strings.TrimRight(*baseURL, "/"), stdout: stdout, stderr: stderr}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	switch command {
	case "health":
		return s.call(ctx, http.MethodGet, "/health", nil)
	case "ready":
		return s.call(ctx, http.MethodGet, "/ready", nil)
	case "datasets":
		return s.call(ctx, http.MethodGet, "/datasets", nil)
	case "views":
		return s.call(ctx, http.MethodGet, "/views", nil)
	case "register":
		return s.register(ctx, rest)
	case "query":
		return s.query(ctx, rest)
	case "view":
		return s.view(ctx, rest)
	case "results":
		return s.results(ctx, rest)
	case "status":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: duckservectl status <task_id>")
			return 2
		}
		return s.call(ctx, http.MethodGet, "/task-status/"+url.PathEscape(rest[0]), nil)
	case "wait":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: duckservectl wait <task_id>")
			return 2
		}
		return s.wait(ctx, rest[0], *pollInterval)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

func (s *session) register(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	sourceType := fs.String("type", "csv", "source type: csv or parquet")
	attrs := attrFlag{}
	fs.Var(&attrs, "attr", "connection attribute key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(s.stderr, "usage: duckservectl register [-type csv|parquet] [-attr k=v]... <source>...")
		return 2
	}
	body := map[string]any{
		"sources":     fs.Args(),
		"source_type": *sourceType,
	}
	if len(attrs) > 0 {
		body["connection_attr"] = map[string]string(attrs)
	}
	return s.call(ctx, http.MethodPost, "/register-dataset", body)
}

func (s *session) query(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	datasetID := fs.String("dataset", "", "dataset id to query")
	cache := fs.Bool("cache", false, "materialize the result as a table")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*datasetID) == "" || fs.NArg() == 0 {
		_, _ = fmt.Fprintln(s.stderr, "usage: duckservectl query -dataset <id> [-cache] <sql>")
		return 2
	}
	return s.call(ctx, http.MethodPost, "/execute-query", map[string]any{
		"dataset_id":   *datasetID,
		"cache_result": *cache,
		"query":        strings.Join(fs.Args(), " "),
	})
}

func (s *session) view(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	datasetID := fs.String("dataset", "", "dataset id the view reads")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*datasetID) == "" || fs.NArg() == 0 {
		_, _ = fmt.Fprintln(s.stderr, "usage: duckservectl view -dataset <id> <sql>")
		return 2
	}
	return s.call(ctx, http.MethodPost, "/create-temporary-view", map[string]any{
		"dataset_id": *datasetID,
		"query":      strings.Join(fs.Args(), " "),
	})
}

func (s *session) results(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	viewID := fs.String("view", "", "view id")
	datasetID := fs.String("dataset", "", "dataset id")
	page := fs.Int("page", -1, "page index")
	size := fs.Int("size", 0, "page size")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *viewID == "" && *datasetID == "" {
		_, _ = fmt.Fprintln(s.stderr, "usage: duckservectl results (-view <id> | -dataset <id>) [-page n] [-size n]")
		return 2
	}

	values := url.Values{}
	if *viewID != "" {
		values.Set("view_id", *viewID)
	}
	if *datasetID != "" {
		values.Set("dataset_id", *datasetID)
	}
	if *page >= 0 {
		values.Set("page_index", strconv.Itoa(*page))
	}
	if *size > 0 {
		values.Set("page_size", strconv.Itoa(*size))
	}
	return s.call(ctx, http.MethodGet, "/query-results?"+values.Encode(), nil)
}

func (s *session) wait(ctx context.Context, taskID string, interval time.Duration) int {
	path := "/task-status/" + url.PathEscape(taskID)
	for {
		code, body, err := s.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			if ctx.Err() != nil {
				_, _ = fmt.Fprintf(s.stderr, "wait for task %s: %v\n", taskID, ctx.Err())
				return 1
			}
			_, _ = fmt.Fprintf(s.stderr, "request failed: %v\n", err)
			return 1
		}
		if code >= 400 {
			_, _ = fmt.Fprintf(s.stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
			return 1
		}

		var status struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			_, _ = fmt.Fprintf(s.stderr, "decode task status: %v\n", err)
			return 1
		}
		switch {
		case status.Status == "completed":
			s.print(body)
			return 0
		case strings.HasPrefix(status.Status, "failed"), status.Status == "unknown":
			s.print(body)
			return 1
		}

		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintf(s.stderr, "wait for task %s: %v\n", taskID, ctx.Err())
			return 1
		case <-time.After(interval):
		}
	}
}

func (s *session) call(ctx context.Context, method, path string, payload any) int {
	code, body, err := s.do(ctx, method, path, payload)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(s.stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
		return 1
	}
	s.print(body)
	return 0
}

func (s *session) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (s *session) print(body []byte) {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(s.stdout, pretty)
		return
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(s.stdout, string(body))
	}
}

type attrFlag map[string]string

func (a attrFlag) String() string {
	parts := make([]string, 0, len(a))
	for key := range a {
		parts = append(parts, key+"=***")
	}
	return strings.Join(parts, ",")
}

func (a attrFlag) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	a[strings.TrimSpace(key)] = value
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: duckservectl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                                       GET /health")
	_, _ = fmt.Fprintln(w, "  ready                                        GET /ready")
	_, _ = fmt.Fprintln(w, "  register [-type t] [-attr k=v]... <src>...   POST /register-dataset")
	_, _ = fmt.Fprintln(w, "  query -dataset <id> [-cache] <sql>           POST /execute-query")
	_, _ = fmt.Fprintln(w, "  view -dataset <id> <sql>                     POST /create-temporary-view")
	_, _ = fmt.Fprintln(w, "  results (-view|-dataset) <id> [-page -size]  GET /query-results")
	_, _ = fmt.Fprintln(w, "  status <task_id>                             GET /task-status/{task_id}")
	_, _ = fmt.Fprintln(w, "  wait <task_id>                               poll until the task is terminal")
	_, _ = fmt.Fprintln(w, "  datasets                                     GET /datasets")
	_, _ = fmt.Fprintln(w, "  views                                        GET /views")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
