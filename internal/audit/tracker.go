package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"peopledesk/internal/audit/metrics"
	"peopledesk/internal/tenancy"
	"peopledesk/pkg/requestcontext"
)

// Tracker assembles and persists audit entries for business events.
//
// # Failure semantics
//
// Audit logging must never block or roll back the business mutation it
// describes. Every Log method therefore returns only *Entry: nil signals
// that the entry was dropped (computation or persistence failed), and no
// error ever reaches the caller. Failures go to the operational log and the
// write-failure counter instead; do not "fix" this by surfacing errors.
//
// The business mutation and the audit write are separate transactions with
// no atomicity between them: a crash in the gap loses the audit entry, never
// the mutation.
type Tracker struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithLogger sets the operational logger used to report dropped writes.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithMetrics replaces the process-wide metrics set, for compositions that
// register on their own prometheus registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker creates a change tracker persisting through the given store.
// Writes and dropped writes report through metrics.Default unless
// WithMetrics overrides it.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, logger: slog.Default(), metrics: metrics.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LogOption attaches optional context to a single entry.
type LogOption func(*Entry)

// WithReason records the caller-supplied free-text reason for the change.
func WithReason(reason string) LogOption {
	return func(e *Entry) { e.Reason = reason }
}

// WithMetadata merges structured extra context into the entry. Values go
// through sanitization like any snapshot.
func WithMetadata(md map[string]any) LogOption {
	return func(e *Entry) {
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		for k, v := range SanitizeForLogging(md) {
			e.Metadata[k] = v
		}
	}
}

// LogCreate records the creation of a resource. The entry stores the
// sanitized new state only; creations have no diff.
func (t *Tracker) LogCreate(ctx context.Context, tc tenancy.Context, meta RequestMeta, resourceType, resourceID, resourceName string, newValues map[string]any, opts ...LogOption) *Entry {
	return t.log(ctx, tc, meta, func(e *Entry) {
		e.Action = ActionCreate
		e.ResourceType = resourceType
		e.ResourceID = resourceID
		e.ResourceName = resourceName
		e.NewValues = SanitizeForLogging(newValues)
	}, opts)
}

// LogUpdate records a mutation with before/after snapshots. Changes holds
// the sanitized field diff; an update with no effective change still
// produces an entry, just without a diff object.
func (t *Tracker) LogUpdate(ctx context.Context, tc tenancy.Context, meta RequestMeta, resourceType, resourceID, resourceName string, previousValues, newValues map[string]any, opts ...LogOption) *Entry {
	return t.log(ctx, tc, meta, func(e *Entry) {
		e.Action = ActionUpdate
		e.ResourceType = resourceType
		e.ResourceID = resourceID
		e.ResourceName = resourceName
		e.Changes = CalculateChanges(previousValues, newValues)
		e.PreviousValues = SanitizeForLogging(previousValues)
		e.NewValues = SanitizeForLogging(newValues)
	}, opts)
}

// LogDelete records a deletion, storing the sanitized final state of the
// record so compliance reviews can see what was removed.
func (t *Tracker) LogDelete(ctx context.Context, tc tenancy.Context, meta RequestMeta, resourceType, resourceID, resourceName string, deletedRecord map[string]any, opts ...LogOption) *Entry {
	return t.log(ctx, tc, meta, func(e *Entry) {
		e.Action = ActionDelete
		e.ResourceType = resourceType
		e.ResourceID = resourceID
		e.ResourceName = resourceName
		e.PreviousValues = SanitizeForLogging(deletedRecord)
	}, opts)
}

// LogViewSensitive records that an actor viewed sensitive fields of a
// resource. Only the field names are stored, never the values.
func (t *Tracker) LogViewSensitive(ctx context.Context, tc tenancy.Context, meta RequestMeta, resourceType, resourceID, resourceName string, fieldsViewed []string, opts ...LogOption) *Entry {
	return t.log(ctx, tc, meta, func(e *Entry) {
		e.Action = ActionViewSensitive
		e.ResourceType = resourceType
		e.ResourceID = resourceID
		e.ResourceName = resourceName
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		e.Metadata["fields_viewed"] = fieldsViewed
	}, opts)
}

// LogBulkUpdate records a bulk mutation. There is no single resource id; the
// resource name is a generated summary and the sanitized criteria land in
// metadata.
func (t *Tracker) LogBulkUpdate(ctx context.Context, tc tenancy.Context, meta RequestMeta, resourceType string, affectedCount int, criteria map[string]any, opts ...LogOption) *Entry {
	return t.logBulk(ctx, tc, meta, ActionBulkUpdate, resourceType, affectedCount, criteria, opts)
}

// LogBulkDelete records a bulk deletion, mirroring LogBulkUpdate.
func (t *Tracker) LogBulkDelete(ctx context.Context, tc tenancy.Context, meta RequestMeta, resourceType string, affectedCount int, criteria map[string]any, opts ...LogOption) *Entry {
	return t.logBulk(ctx, tc, meta, ActionBulkDelete, resourceType, affectedCount, criteria, opts)
}

// LogRestore records a soft-deleted record coming back, storing its
// sanitized restored state.
func (t *Tracker) LogRestore(ctx context.Context, tc tenancy.Context, meta RequestMeta, resourceType, resourceID, resourceName string, restoredRecord map[string]any, opts ...LogOption) *Entry {
	return t.log(ctx, tc, meta, func(e *Entry) {
		e.Action = ActionRestore
		e.ResourceType = resourceType
		e.ResourceID = resourceID
		e.ResourceName = resourceName
		e.NewValues = SanitizeForLogging(restoredRecord)
	}, opts)
}

// LogArchive records a record moving to archived state, storing its
// sanitized pre-archive snapshot.
func (t *Tracker) LogArchive(ctx context.Context, tc tenancy.Context, meta RequestMeta, resourceType, resourceID, resourceName string, archivedRecord map[string]any, opts ...LogOption) *Entry {
	return t.log(ctx, tc, meta, func(e *Entry) {
		e.Action = ActionArchive
		e.ResourceType = resourceType
		e.ResourceID = resourceID
		e.ResourceName = resourceName
		e.PreviousValues = SanitizeForLogging(archivedRecord)
	}, opts)
}

func (t *Tracker) logBulk(ctx context.Context, tc tenancy.Context, meta RequestMeta, action Action, resourceType string, affectedCount int, criteria map[string]any, opts []LogOption) *Entry {
	return t.log(ctx, tc, meta, func(e *Entry) {
		e.Action = action
		e.ResourceType = resourceType
		e.ResourceName = fmt.Sprintf("%d %s records", affectedCount, resourceType)
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		e.Metadata["affected_count"] = affectedCount
		e.Metadata["criteria"] = SanitizeForLogging(criteria)
	}, opts)
}

// log assembles and persists one entry. Panics from diffing or sanitizing
// malformed values are recovered here; whatever goes wrong, the caller gets
// nil and keeps going.
func (t *Tracker) log(ctx context.Context, tc tenancy.Context, meta RequestMeta, fill func(*Entry), opts []LogOption) (entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			t.dropped(ctx, entry, fmt.Errorf("panic assembling audit entry: %v", r))
			entry = nil
		}
	}()

	entry = &Entry{
		ID:        uuid.New(),
		TenantID:  tc.TenantID,
		UserID:    tc.UserID,
		UserEmail: meta.UserEmail,
		UserRole:  meta.UserRole,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		SessionID: meta.SessionID,
		RequestID: meta.RequestID,
		CreatedAt: requestcontext.Now(ctx),
	}
	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}

	fill(entry)
	for _, opt := range opts {
		opt(entry)
	}

	start := time.Now()
	if err := t.store.Append(ctx, entry); err != nil {
		t.dropped(ctx, entry, err)
		return nil
	}
	if t.metrics != nil {
		t.metrics.ObserveWrite(start)
		t.metrics.IncEntriesWritten(string(entry.Action))
	}
	return entry
}

func (t *Tracker) dropped(ctx context.Context, entry *Entry, err error) {
	if t.metrics != nil {
		t.metrics.IncWriteFailures()
	}
	attrs := []any{"error", err}
	if entry != nil {
		attrs = append(attrs,
			"action", string(entry.Action),
			"resource_type", entry.ResourceType,
			"resource_id", entry.ResourceID,
			"tenant_id", entry.TenantID.String(),
			"request_id", entry.RequestID,
		)
	}
	t.logger.ErrorContext(ctx, "audit entry dropped", attrs...)
}
