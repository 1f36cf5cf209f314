package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/patent-harvester/internal/api/middleware"
	"github.com/dvloznov/patent-harvester/internal/extract"
	"github.com/dvloznov/patent-harvester/internal/schema"
	"github.com/dvloznov/patent-harvester/internal/tasks"
)

// ExtractHandler handles extraction task endpoints.
type ExtractHandler struct {
	orchestrator *extract.Orchestrator
	registry     *tasks.Registry
	log          zerolog.Logger
}

// NewExtractHandler creates a new extraction handler.
func NewExtractHandler(orchestrator *extract.Orchestrator, registry *tasks.Registry, log zerolog.Logger) *ExtractHandler {
	return &ExtractHandler{
		orchestrator: orchestrator,
		registry:     registry,
		log:          log,
	}
}

// extractRequest is the POST /api/extract body. Columns and types are
// parallel arrays describing the target table schema.
type extractRequest struct {
	Query   string   `json:"query"`
	Columns []string `json:"columns"`
	Types   []string `json:"types"`
}

// StartExtraction handles POST /api/extract
func (h *ExtractHandler) StartExtraction(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if len(req.Columns) != len(req.Types) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_schema",
			fmt.Sprintf("columns and types length mismatch: %d vs %d", len(req.Columns), len(req.Types)))
		return
	}

	types := make([]schema.ColumnType, len(req.Types))
	for i, t := range req.Types {
		types[i] = schema.ColumnType(t)
	}

	dataset, err := schema.New(req.Query, req.Columns, types)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_schema", err.Error())
		return
	}

	taskID, snap := h.orchestrator.Submit(r.Context(), dataset)

	h.log.Info().
		Str("task_id", taskID).
		Str("query", req.Query).
		Int("columns", len(req.Columns)).
		Msg("Extraction task started")

	middleware.WriteJSON(w, http.StatusAccepted, snap)
}

// GetProgress handles GET /api/extract/{taskID}/progress
func (h *ExtractHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	snap, ok := h.registry.Snapshot(taskID)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "not_found", "Unknown or expired task")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, snap)
}

// GetResult handles GET /api/extract/{taskID}/result
func (h *ExtractHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	csvText, ready, ok := h.registry.Result(taskID)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "not_found", "Unknown or expired task")
		return
	}
	if !ready {
		middleware.WriteError(w, http.StatusConflict, "not_ready", "Extraction has not completed")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", taskID+".csv"))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(csvText))
}

// Health handles GET /api/health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
