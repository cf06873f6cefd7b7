package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/duckserve/duckserve/internal/service"
)

type executeQueryRequest struct {
	DatasetID   string `json:"dataset_id"`
	CacheResult bool   `json:"cache_result"`
	Query       string `json:"query"`
}

type executeQueryResponse struct {
	TaskID  string `json:"task_id"`
	ViewID  string `json:"view_id"`
	Message string `json:"message"`
}

type temporaryViewRequest struct {
	DatasetID string `json:"dataset_id"`
	Query     string `json:"query"`
}

func handleExecuteQuery(svc *service.Service, w http.ResponseWriter, r *http.Request) {
	var request executeQueryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid execute-query request body", false, map[string]any{"details": err.Error()})
		return
	}

	accepted, err := svc.ExecuteQuery(r.Context(), service.QueryRequest{
		DatasetID:   request.DatasetID,
		CacheResult: request.CacheResult,
		Query:       request.Query,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, executeQueryResponse{
		TaskID:  accepted.TaskID,
		ViewID:  accepted.TargetID,
		Message: "Query execution in progress",
	})
}

func handleCreateTemporaryView(svc *service.Service, w http.ResponseWriter, r *http.Request) {
	var request temporaryViewRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid create-temporary-view request body", false, map[string]any{"details": err.Error()})
		return
	}

	viewID, err := svc.CreateTemporaryView(r.Context(), service.ViewRequest{DatasetID: request.DatasetID, Query: request.Query})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"view_id": viewID})
}

func handleQueryResults(svc *service.Service, w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	request := service.ResultsRequest{
		ViewID:    values.Get("view_id"),
		DatasetID: values.Get("dataset_id"),
	}

	if raw := strings.TrimSpace(values.Get("page_index")); raw != "" {
		pageIndex, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "page_index must be an integer", false, map[string]any{"field": "page_index"})
			return
		}
		request.PageIndex = pageIndex
	}
	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "page_size must be an integer", false, map[string]any{"field": "page_size"})
			return
		}
		request.PageSize = &pageSize
	}

	page, err := svc.Results(r.Context(), request)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
