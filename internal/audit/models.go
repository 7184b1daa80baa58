// Package audit implements the append-only change-tracking engine: field
// diffs between before/after record states, redaction and masking of
// sensitive fields, and persistence of immutable audit entries usable as
// compliance evidence.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "peopledesk/pkg/domain"
	"peopledesk/pkg/requestcontext"
)

// Action names the kind of state change an entry records.
type Action string

const (
	ActionCreate        Action = "CREATE"
	ActionUpdate        Action = "UPDATE"
	ActionDelete        Action = "DELETE"
	ActionViewSensitive Action = "VIEW_SENSITIVE"
	ActionBulkUpdate    Action = "BULK_UPDATE"
	ActionBulkDelete    Action = "BULK_DELETE"
	ActionRestore       Action = "RESTORE"
	ActionArchive       Action = "ARCHIVE"
)

// Change is one field-level before/after pair. Masked fields carry masked
// tokens on both sides.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Entry is the immutable record of one state change. Once persisted it is
// never updated or deleted; neither the Store interface nor the query
// service expose any mutation path.
type Entry struct {
	ID       uuid.UUID   `json:"id"`
	TenantID id.TenantID `json:"tenant_id"`
	// UserID is nil for unattributed operations (system jobs).
	UserID    id.UserID `json:"user_id"`
	UserEmail string    `json:"user_email,omitempty"`
	UserRole  string    `json:"user_role,omitempty"`

	Action       Action `json:"action"`
	ResourceType string `json:"resource_type"`
	// ResourceID is empty for bulk actions.
	ResourceID   string `json:"resource_id,omitempty"`
	ResourceName string `json:"resource_name,omitempty"`

	// Changes holds sanitized field diffs, present only for UPDATE and
	// BULK_UPDATE and only for fields that actually changed.
	Changes map[string]Change `json:"changes,omitempty"`
	// PreviousValues and NewValues are sanitized snapshots; which is set
	// depends on the action (CREATE stores new only, DELETE old only).
	PreviousValues map[string]any `json:"previous_values,omitempty"`
	NewValues      map[string]any `json:"new_values,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	// RequestID correlates entries from one logical operation. Generated
	// when the caller supplies none.
	RequestID string `json:"request_id"`

	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RequestMeta carries the request-scoped actor and client metadata the
// upstream HTTP layer extracted. The audit engine embeds these as opaque
// strings.
type RequestMeta struct {
	UserEmail string
	UserRole  string
	IPAddress string
	UserAgent string
	SessionID string
	RequestID string
}

// MetaFromContext assembles RequestMeta from values the middleware chain
// placed in ctx.
func MetaFromContext(ctx context.Context) RequestMeta {
	return RequestMeta{
		UserEmail: requestcontext.UserEmail(ctx),
		UserRole:  requestcontext.UserRole(ctx),
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		SessionID: requestcontext.SessionID(ctx),
		RequestID: requestcontext.RequestID(ctx),
	}
}

// Filter narrows audit trail reads. All fields are optional and compose
// conjunctively. The tenant scope is a separate mandatory argument, never a
// filter.
type Filter struct {
	ResourceType string
	ResourceID   string
	UserID       id.UserID
	Action       Action
	Start        time.Time
	End          time.Time
	Limit        int
	Offset       int
}

// Store persists audit entries. The interface is append-only: no update or
// delete exists here or anywhere else in the public contract, which is what
// enforces entry immutability at the API surface.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, tenantID id.TenantID, filter Filter) ([]Entry, error)
	Count(ctx context.Context, tenantID id.TenantID, filter Filter) (int, error)
}
