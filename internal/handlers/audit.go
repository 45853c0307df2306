package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/forkline/forkline-auth/internal/models"
	pkghttp "github.com/forkline/forkline-auth/pkg/http"
)

// AuditReader lists persisted audit entries for the back-office view.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}

// AuditHandler serves the admin audit trail view.
type AuditHandler struct {
	audits AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audits AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audits: audits,
		logger: logger,
	}
}

// AuditEntryResponse represents one audit entry in the HTTP response
type AuditEntryResponse struct {
	ID        string                 `json:"id"`
	ActorRole string                 `json:"actor_role"`
	ActorID   *string                `json:"actor_id,omitempty"`
	IPAddress string                 `json:"ip_address"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Action    string                 `json:"action"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ListRecent returns the newest audit entries, most recent first.
// @Router /admin/audit [get]
func (h *AuditHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 || l > 200 {
			pkghttp.WriteBadRequest(w, "limit must be between 1 and 200")
			return
		}
		limit = l
	}

	entries, err := h.audits.ListRecent(r.Context(), limit)
	if err != nil {
		ref := pkghttp.WriteInternalError(w)
		h.logger.Error("failed to list audit entries",
			slog.String("request_ref", ref),
			slog.Any("error", err))
		return
	}

	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, AuditEntryResponse{
			ID:        entry.ID.String(),
			ActorRole: string(entry.ActorRole),
			ActorID:   entry.ActorID,
			IPAddress: entry.IPAddress,
			UserAgent: entry.UserAgent,
			Action:    entry.Action,
			Metadata:  entry.Metadata,
			CreatedAt: entry.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
