package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

const (
	defaultListLimit = 500
	maxListLimit     = 5000
	maxDraftBytes    = 64 << 10
)

type listResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	Total         int                   `json:"total"`
}

// storeFor resolves the request's store, answering 503 when unbound.
func (s *Server) storeFor(w http.ResponseWriter, r *http.Request) (*notify.Store, bool) {
	store, err := notify.FromContext(r.Context())
	if err != nil {
		s.logger.Error("request without notification store", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	return store, true
}

// listNotifications handles GET /v1/notifications. Total counts every match
// before paging; unread_count is the feed-wide badge value.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, unread := store.Snapshot()
	matched := filter.Apply(list)
	writeJSON(w, http.StatusOK, listResponse{
		Notifications: page(matched, limit, offset),
		UnreadCount:   unread,
		Total:         len(matched),
	})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, notify.Summarize(filter.Apply(store.List())))
}

func (s *Server) getNotification(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	n, found := store.Get(chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) addNotification(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	var d notify.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDraftBytes)).Decode(&d); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if d.Severity != "" {
		sev, err := notify.ParseSeverity(string(d.Severity))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		d.Severity = sev
	}
	if err := d.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, store.Add(d))
}

// markRead handles POST /v1/notifications/{id}/read. Unknown ids and already
// read entries answer 200 with changed=false.
func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	changed := store.MarkAsRead(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           id,
		"changed":      changed,
		"unread_count": store.UnreadCount(),
	})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	marked := store.MarkAllAsRead()
	writeJSON(w, http.StatusOK, map[string]int{
		"marked":       marked,
		"unread_count": store.UnreadCount(),
	})
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	store.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearNotifications(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": store.Clear()})
}

// exportNotifications handles POST /v1/notifications/export with the same
// filter query as the list route.
func (s *Server) exportNotifications(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export unavailable")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.exporter.Export(r.Context(), filter)
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export notifications")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func parseFilter(r *http.Request) (notify.Filter, error) {
	q := r.URL.Query()
	f := notify.Filter{
		Server:   strings.TrimSpace(q.Get("server")),
		Query:    q.Get("q"),
		Category: strings.TrimSpace(q.Get("category")),
	}
	if raw := strings.TrimSpace(q.Get("severity")); raw != "" && !strings.EqualFold(raw, string(notify.SeverityAll)) {
		sev, err := notify.ParseSeverity(raw)
		if err != nil {
			return notify.Filter{}, err
		}
		f.Severity = sev
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("status"))) {
	case "", "all":
	case "unread":
		f.UnreadOnly = true
	default:
		return notify.Filter{}, errors.New("invalid status")
	}
	return f, nil
}

func page(in []notify.Notification, limit, offset int) []notify.Notification {
	if offset >= len(in) {
		return []notify.Notification{}
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}
