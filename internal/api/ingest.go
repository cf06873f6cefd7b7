package api

import (
	"net/http"

	"github.com/duckserve/duckserve/internal/service"
)

type registerDatasetRequest struct {
	Sources        []string          `json:"sources"`
	SourceType     string            `json:"source_type"`
	ConnectionAttr map[string]string `json:"connection_attr"`
}

type registerDatasetResponse struct {
	TaskID    string `json:"task_id"`
	DatasetID string `json:"dataset_id"`
	Message   string `json:"message"`
}

func handleRegisterDataset(svc *service.Service, w http.ResponseWriter, r *http.Request) {
	var request registerDatasetRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid register-dataset request body", false, map[string]any{"details": err.Error()})
		return
	}

	accepted, err := svc.RegisterDataset(r.Context(), service.RegisterRequest{
		Sources:        request.Sources,
		SourceType:     request.SourceType,
		ConnectionAttr: request.ConnectionAttr,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, registerDatasetResponse{
		TaskID:    accepted.TaskID,
		DatasetID: accepted.TargetID,
		Message:   "Dataset registration in progress",
	})
}
