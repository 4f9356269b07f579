package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// BatchLister returns the newest batch reports first.
type BatchLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.BatchReport, error)
}

// ReportLoader fetches one archived batch report.
type ReportLoader interface {
	Load(ctx context.Context, batchID string) (domain.BatchReport, error)
}

// BatchHandler serves recent and archived batch reports.
type BatchHandler struct {
	recent  BatchLister
	archive ReportLoader
	logger  *slog.Logger
}

// NewBatchHandler creates a BatchHandler. Either source may be nil, in which
// case its endpoint answers 404.
func NewBatchHandler(recent BatchLister, archive ReportLoader, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{recent: recent, archive: archive, logger: logger.With(slog.String("handler", "batches"))}
}

// ListRecent returns the newest batch reports.
// GET /api/batches?limit=N
func (h *BatchHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.recent == nil {
		writeError(w, http.StatusNotFound, "batch history is not configured")
		return
	}
	reports, err := h.recent.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list batches failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}
	if reports == nil {
		reports = []domain.BatchReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": reports, "count": len(reports)})
}

// Get returns one archived report.
// GET /api/batches/{id}
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "batch archive is not configured")
		return
	}
	id := r.PathValue("id")
	report, err := h.archive.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: load batch failed",
			slog.String("batch_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
