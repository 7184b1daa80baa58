// Package postgres persists audit entries in the audit_entries table.
//
// The store is append-only by construction: it exposes Append plus read
// methods and nothing else. The table carries no UPDATE/DELETE path anywhere
// in this codebase.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"peopledesk/internal/audit"
	id "peopledesk/pkg/domain"
)

type Store struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const entryColumns = `id, tenant_id, user_id, user_email, user_role, action,
	resource_type, resource_id, resource_name, changes, previous_values,
	new_values, ip_address, user_agent, session_id, request_id, reason,
	metadata, created_at`

// Append inserts one audit entry. The entry's ID and CreatedAt were assigned
// by the tracker; the insert is the single write this table ever sees per
// row.
func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	changes, err := marshalNullable(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	previous, err := marshalNullable(entry.PreviousValues)
	if err != nil {
		return fmt.Errorf("marshal previous values: %w", err)
	}
	next, err := marshalNullable(entry.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}
	metadata, err := marshalNullable(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := s.builder.Insert("audit_entries").
		Columns("id", "tenant_id", "user_id", "user_email", "user_role",
			"action", "resource_type", "resource_id", "resource_name",
			"changes", "previous_values", "new_values",
			"ip_address", "user_agent", "session_id", "request_id",
			"reason", "metadata", "created_at").
		Values(entry.ID, uuid.UUID(entry.TenantID), nullableUserID(entry.UserID),
			entry.UserEmail, entry.UserRole,
			string(entry.Action), entry.ResourceType, nullableString(entry.ResourceID), entry.ResourceName,
			changes, previous, next,
			entry.IPAddress, entry.UserAgent, entry.SessionID, entry.RequestID,
			entry.Reason, metadata, entry.CreatedAt)

	sqlText, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlText, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries for the tenant matching the filter, newest first.
func (s *Store) List(ctx context.Context, tenantID id.TenantID, filter audit.Filter) ([]audit.Entry, error) {
	query := s.builder.Select(entryColumns).
		From("audit_entries").
		Where(sq.Eq{"tenant_id": uuid.UUID(tenantID)}).
		OrderBy("created_at DESC")
	query = applyFilter(query, filter)
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of entries matching the filter.
func (s *Store) Count(ctx context.Context, tenantID id.TenantID, filter audit.Filter) (int, error) {
	query := s.builder.Select("COUNT(*)").
		From("audit_entries").
		Where(sq.Eq{"tenant_id": uuid.UUID(tenantID)})
	query = applyFilter(query, filter)

	sqlText, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build audit count: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, sqlText, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

func applyFilter(query sq.SelectBuilder, filter audit.Filter) sq.SelectBuilder {
	if filter.ResourceType != "" {
		query = query.Where(sq.Eq{"resource_type": filter.ResourceType})
	}
	if filter.ResourceID != "" {
		query = query.Where(sq.Eq{"resource_id": filter.ResourceID})
	}
	if !filter.UserID.IsNil() {
		query = query.Where(sq.Eq{"user_id": uuid.UUID(filter.UserID)})
	}
	if filter.Action != "" {
		query = query.Where(sq.Eq{"action": string(filter.Action)})
	}
	if !filter.Start.IsZero() {
		query = query.Where(sq.GtOrEq{"created_at": filter.Start})
	}
	if !filter.End.IsZero() {
		query = query.Where(sq.LtOrEq{"created_at": filter.End})
	}
	return query
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			entry      audit.Entry
			tenantID   uuid.UUID
			userID     *uuid.UUID
			action     string
			resourceID sql.NullString
			changes    []byte
			previous   []byte
			next       []byte
			metadata   []byte
		)
		err := rows.Scan(
			&entry.ID, &tenantID, &userID, &entry.UserEmail, &entry.UserRole,
			&action, &entry.ResourceType, &resourceID, &entry.ResourceName,
			&changes, &previous, &next,
			&entry.IPAddress, &entry.UserAgent, &entry.SessionID, &entry.RequestID,
			&entry.Reason, &metadata, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.TenantID = id.TenantID(tenantID)
		if userID != nil {
			entry.UserID = id.UserID(*userID)
		}
		entry.Action = audit.Action(action)
		entry.ResourceID = resourceID.String

		if err := unmarshalNullable(changes, &entry.Changes); err != nil {
			return nil, fmt.Errorf("unmarshal changes: %w", err)
		}
		if err := unmarshalNullable(previous, &entry.PreviousValues); err != nil {
			return nil, fmt.Errorf("unmarshal previous values: %w", err)
		}
		if err := unmarshalNullable(next, &entry.NewValues); err != nil {
			return nil, fmt.Errorf("unmarshal new values: %w", err)
		}
		if err := unmarshalNullable(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// marshalNullable renders a map as JSON, or NULL when the map is nil so
// absent snapshots stay absent in the row.
func marshalNullable[M ~map[string]V, V any](m M) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalNullable[T any](data []byte, target *T) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func nullableUserID(userID id.UserID) any {
	if userID.IsNil() {
		return nil
	}
	return uuid.UUID(userID)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
