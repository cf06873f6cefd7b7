package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckserve/duckserve/internal/config"
	"github.com/duckserve/duckserve/internal/observability"
	"github.com/duckserve/duckserve/internal/service"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Service           *service.Service
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /register-dataset", withService(deps, handleRegisterDataset))
	mux.HandleFunc("POST /execute-query", withService(deps, handleExecuteQuery))
	mux.HandleFunc("POST /create-temporary-view", withService(deps, handleCreateTemporaryView))
	mux.HandleFunc("GET /query-results", withService(deps, handleQueryResults))
	mux.HandleFunc("GET /task-status/{task_id}", withService(deps, handleTaskStatus))
	mux.HandleFunc("GET /datasets", withService(deps, handleListDatasets))
	mux.HandleFunc("GET /views", withService(deps, handleListViews))

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func withService(deps Dependencies, next func(*service.Service, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Service == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "SERVICE_NOT_CONFIGURED", "service dependencies are not configured", false, nil)
			return
		}
		next(deps.Service, w, r)
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeServiceError maps the service error taxonomy onto status codes.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		writeError(ctx, w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, map[string]any{"field": validation.Field})
		return
	}
	var notFound *service.NotFoundError
	if errors.As(err, &notFound) {
		code := "NOT_FOUND"
		switch notFound.Kind {
		case "dataset":
			code = "DATASET_NOT_FOUND"
		case "view":
			code = "VIEW_NOT_FOUND"
		}
		writeError(ctx, w, http.StatusNotFound, code, err.Error(), false, map[string]any{"id": notFound.ID})
		return
	}
	var execution *service.ExecutionError
	if errors.As(err, &execution) {
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}
	writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "request failed", true, map[string]any{"details": err.Error()})
}
