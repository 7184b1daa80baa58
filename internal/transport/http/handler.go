// Package http exposes the read-only compliance views over HTTP for
// operators and the upstream application. Tenant and user identity arrive in
// trusted headers set by the edge proxy after authentication; this layer
// performs no authentication itself.
//
// Only audit reads are served here. There is deliberately no route that
// writes or alters an audit entry.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"peopledesk/internal/audit"
	id "peopledesk/pkg/domain"
	"peopledesk/pkg/requestcontext"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerUserID   = "X-User-ID"
)

type Handler struct {
	queries *audit.QueryService
	log     *slog.Logger
}

func NewHandler(queries *audit.QueryService, log *slog.Logger) *Handler {
	return &Handler{queries: queries, log: log}
}

// Routes mounts the audit read endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/audit/trail", h.getAuditTrail)
	r.Get("/audit/resources/{resourceType}/{resourceID}/history", h.getResourceHistory)
	r.Get("/audit/users/{userID}/activity", h.getUserActivity)
}

// Identity lifts the trusted identity headers into the request context so
// downstream code reads them through pkg/requestcontext like everywhere
// else.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if tenantID, err := id.ParseTenantID(r.Header.Get(headerTenantID)); err == nil {
			ctx = requestcontext.WithTenantID(ctx, tenantID)
		}
		if userID, err := id.ParseUserID(r.Header.Get(headerUserID)); err == nil {
			ctx = requestcontext.WithUserID(ctx, userID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) getAuditTrail(w http.ResponseWriter, r *http.Request) {
	tenantID := requestcontext.TenantID(r.Context())
	if tenantID.IsNil() {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.queries.GetAuditTrail(r.Context(), tenantID, filter)
	if err != nil {
		h.serverError(w, r, "audit trail read failed", err)
		return
	}
	count, err := h.queries.GetAuditTrailCount(r.Context(), tenantID, filter)
	if err != nil {
		h.serverError(w, r, "audit trail count failed", err)
		return
	}

	h.writeJSON(w, map[string]any{"entries": entries, "total": count})
}

func (h *Handler) getResourceHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := requestcontext.TenantID(r.Context())
	if tenantID.IsNil() {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	entries, err := h.queries.GetResourceHistory(r.Context(), tenantID,
		chi.URLParam(r, "resourceType"), chi.URLParam(r, "resourceID"), intQuery(r, "limit"))
	if err != nil {
		h.serverError(w, r, "resource history read failed", err)
		return
	}
	h.writeJSON(w, map[string]any{"entries": entries})
}

func (h *Handler) getUserActivity(w http.ResponseWriter, r *http.Request) {
	tenantID := requestcontext.TenantID(r.Context())
	if tenantID.IsNil() {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	entries, err := h.queries.GetUserActivity(r.Context(), tenantID, userID, intQuery(r, "limit"))
	if err != nil {
		h.serverError(w, r, "user activity read failed", err)
		return
	}
	h.writeJSON(w, map[string]any{"entries": entries})
}

func filterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Action:       audit.Action(q.Get("action")),
		Limit:        intQuery(r, "limit"),
		Offset:       intQuery(r, "offset"),
	}
	if s := q.Get("user_id"); s != "" {
		userID, err := id.ParseUserID(s)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.UserID = userID
	}
	if s := q.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.Start = t
	}
	if s := q.Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.End = t
	}
	return filter, nil
}

func intQuery(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("encode response", "error", err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log.ErrorContext(r.Context(), msg, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
