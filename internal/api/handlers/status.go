package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/internal/ledger"
	"github.com/mkearny/contrabot/internal/scheduler"
	"github.com/mkearny/contrabot/pkg/logger"
)

// StatusHandler serves the read-only view of the bot: the position book,
// realized performance, per-post audit trails and job health.
type StatusHandler struct {
	ledger    *ledger.Ledger
	audit     contracts.AuditRepository
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(l *ledger.Ledger, audit contracts.AuditRepository, sched *scheduler.Scheduler, log *logger.Logger) *StatusHandler {
	return &StatusHandler{
		ledger:    l,
		audit:     audit,
		scheduler: sched,
		logger:    log,
	}
}

// GetSummary returns the book snapshot with realized and unrealized P&L.
// GET /api/summary
func (h *StatusHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Snapshot(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to build summary")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve summary")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetPositions returns the open positions.
// GET /api/positions
func (h *StatusHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Snapshot(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load positions")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve positions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     summary.OpenPositions,
		"positions": summary.Positions,
	})
}

// GetAuditTrail returns the full pipeline audit trail for one post.
// GET /api/posts/{id}/audit
func (h *StatusHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]

	records, err := h.audit.ByPost(r.Context(), postID)
	if err != nil {
		h.logger.WithField("post_id", postID).WithError(err).Error("Failed to load audit trail")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve audit trail")
		return
	}
	if len(records) == 0 {
		respondError(w, http.StatusNotFound, "No audit records for post")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"post_id": postID,
		"records": records,
	})
}

// GetJobs returns scheduler statistics.
// GET /api/jobs
func (h *StatusHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.GetJobStats())
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
