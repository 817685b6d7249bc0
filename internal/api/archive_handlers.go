package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/fleetwatch/internal/archive"
	"github.com/JakeFAU/fleetwatch/internal/notify"
)

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 500
	archiveTimeout      = 3 * time.Second
)

// ArchiveHandler exposes read-only access to the notification audit trail.
type ArchiveHandler struct {
	repo    archive.Repository
	timeout time.Duration
	logger  *zap.Logger
}

// NewArchiveHandler wires the repository and logger. A nil repo answers 503.
func NewArchiveHandler(repo archive.Repository, logger *zap.Logger) *ArchiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveHandler{
		repo:    repo,
		timeout: archiveTimeout,
		logger:  logger,
	}
}

// List handles GET /v1/archive?limit=&offset=. It returns {"records": [...]}
// on success, 400 for invalid paging, 503 when the archive is disabled, or 500
// if the repository call fails.
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "archive unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultArchiveLimit, maxArchiveLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	recs, err := h.repo.ListRecent(ctx, limit, offset)
	if err != nil {
		h.logger.Error("list archive failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": toRecordDTOs(recs)})
}

// Get handles GET /v1/archive/{id}. It returns {"record": {...}}, 404 when
// the repository reports archive.ErrNotFound, 503 when disabled, or 500.
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "archive unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive record not found")
			return
		}
		h.logger.Error("get archive record failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load archive record")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": toRecordDTO(rec)})
}

type recordDTO struct {
	notify.Notification
	ReadAt        *time.Time `json:"read_at,omitempty"`
	RemovedAt     *time.Time `json:"removed_at,omitempty"`
	RemovedReason string     `json:"removed_reason,omitempty"`
}

func toRecordDTO(rec archive.Record) recordDTO {
	dto := recordDTO{
		Notification: rec.Notification,
		ReadAt:       rec.ReadAt,
		RemovedAt:    rec.RemovedAt,
	}
	if rec.RemovedReason != nil {
		dto.RemovedReason = string(*rec.RemovedReason)
	}
	return dto
}

func toRecordDTOs(in []archive.Record) []recordDTO {
	out := make([]recordDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toRecordDTO(rec))
	}
	return out
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
