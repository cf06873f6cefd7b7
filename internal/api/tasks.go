package api

import (
	"net/http"
	"time"

	"github.com/duckserve/duckserve/internal/service"
)

type taskStatusResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Kind     string `json:"kind,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

type datasetResponse struct {
	DatasetID    string    `json:"dataset_id"`
	Sources      []string  `json:"sources"`
	SourceType   string    `json:"source_type"`
	RegisteredAt time.Time `json:"registered_at"`
}

type viewResponse struct {
	ViewID    string    `json:"view_id"`
	DatasetID string    `json:"dataset_id"`
	Cached    bool      `json:"cached"`
	CreatedAt time.Time `json:"created_at"`
}

func handleTaskStatus(svc *service.Service, w http.ResponseWriter, r *http.Request) {
	task := svc.TaskStatus(r.PathValue("task_id"))
	writeJSON(w, http.StatusOK, taskStatusResponse{
		TaskID:   task.ID,
		Status:   task.Status(),
		Kind:     string(task.Kind),
		TargetID: task.TargetID,
	})
}

func handleListDatasets(svc *service.Service, w http.ResponseWriter, _ *http.Request) {
	datasets := svc.ListDatasets()
	out := make([]datasetResponse, 0, len(datasets))
	for _, dataset := range datasets {
		out = append(out, datasetResponse{
			DatasetID:    dataset.ID,
			Sources:      dataset.Sources,
			SourceType:   string(dataset.SourceType),
			RegisteredAt: dataset.RegisteredAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func handleListViews(svc *service.Service, w http.ResponseWriter, _ *http.Request) {
	views := svc.ListViews()
	out := make([]viewResponse, 0, len(views))
	for _, view := range views {
		out = append(out, viewResponse{
			ViewID:    view.ID,
			DatasetID: view.DatasetID,
			Cached:    view.Cached,
			CreatedAt: view.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"views": out})
}
