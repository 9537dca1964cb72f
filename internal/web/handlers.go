package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabload/internal/validate"
)

// healthTimeout bounds the storage check behind /healthz.
const healthTimeout = 2 * time.Second

// ValidateResponse is the body of a dry-run validation.
type ValidateResponse struct {
	Entity       string                `json:"entity"`
	Valid        bool                  `json:"valid"`
	RowsReceived int                   `json:"rows_received"`
	RowsValid    int                   `json:"rows_valid"`
	Errors       *validate.ErrorReport `json:"errors"`
	DurationMS   int64                 `json:"duration_ms"`
}

// IngestResponse is the body of a successful ingest.
type IngestResponse struct {
	ID           string           `json:"id"`
	Entity       string           `json:"entity"`
	Table        string           `json:"table"`
	RowsReceived int              `json:"rows_received"`
	RowsSaved    int              `json:"rows_saved"`
	Returned     []map[string]any `json:"returned,omitempty"`
	DurationMS   int64            `json:"duration_ms"`
}

// handleHealth reports liveness and, when configured, storage health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleListSchemas lists every registered schema.
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Schemas())
}

// handleGetSchema describes one schema.
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Schema(chi.URLParam(r, "entity"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, info)
}

// handleValidate runs validation on an upload without saving it. An
// invalid dataset is still a 200: the report is the answer.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if _, err := s.service.Schema(entity); err != nil {
		s.respondError(w, r, err)
		return
	}

	raw, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Validate(ctx, entity, raw)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, ValidateResponse{
		Entity:       res.Entity,
		Valid:        res.Valid(),
		RowsReceived: res.RowsReceived,
		RowsValid:    res.RowsValid,
		Errors:       res.Report,
		DurationMS:   res.Duration.Milliseconds(),
	})
}

// handleIngest validates an upload and saves it. Columns listed in
// ?returning=a,b are returned for every saved row.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if _, err := s.service.Schema(entity); err != nil {
		s.respondError(w, r, err)
		return
	}

	raw, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Ingest(ctx, entity, raw, listParam(r, "returning"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, IngestResponse{
		ID:           res.ID,
		Entity:       res.Entity,
		Table:        res.Table,
		RowsReceived: res.RowsReceived,
		RowsSaved:    res.RowsSaved,
		Returned:     res.Returned,
		DurationMS:   res.Duration.Milliseconds(),
	})
}

// handleIngestStatus reports ingest queue occupancy.
func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	l := s.service.Limiter()
	if l == nil {
		writeJSON(w, map[string]any{"limited": false})
		return
	}
	writeJSON(w, l.Status())
}
