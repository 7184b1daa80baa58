// Package gateway implements the generic tenant-scoped data-access layer.
//
// One Gateway instance serves one table. Every operation takes a
// tenancy.Context and fails fast with sentinel.ErrTenantRequired before any
// query is issued when the tenant is missing. The tenant_id filter is applied
// on every single query path; it is the sole mechanism preventing
// cross-tenant visibility.
//
// The gateway performs no audit logging itself. Callers load old state,
// mutate, then hand before/after snapshots to the audit tracker. Keeping the
// two apart keeps the gateway generic and testable in isolation.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"peopledesk/internal/tenancy"
	dErrors "peopledesk/pkg/domain-errors"
	"peopledesk/pkg/platform/sentinel"
	"peopledesk/pkg/requestcontext"
)

// Record is one row of a tenant-scoped table, keyed by column name.
type Record map[string]any

// Conditions is a conjunctive set of column = value filters.
type Conditions map[string]any

// ListOptions controls pagination and ordering for FindAll.
type ListOptions struct {
	Limit   uint64
	Offset  uint64
	OrderBy string
	// Order is "ASC" or "DESC" (case-insensitive). Anything else falls back
	// to ascending; it never reaches query text unvalidated.
	Order string
	// IncludeDeleted re-includes soft-deleted rows. Off by default so a
	// forgotten filter can never leak deleted records into reads.
	IncludeDeleted bool
}

const defaultLimit = 100

// Reserved columns the gateway owns. Caller-supplied values for these are
// discarded on writes so a payload can never override tenant scoping or
// lifecycle markers.
var reservedColumns = map[string]bool{
	"tenant_id":  true,
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
}

var columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Gateway provides tenant-scoped access to a single named table.
type Gateway struct {
	db        *sql.DB
	table     string
	orderable map[string]bool
	builder   sq.StatementBuilderType
	tracer    trace.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithOrderableColumns declares the columns FindAll may order by.
// "id" is always permitted.
func WithOrderableColumns(cols ...string) Option {
	return func(g *Gateway) {
		for _, c := range cols {
			g.orderable[c] = true
		}
	}
}

// New creates a gateway over the named table.
func New(db *sql.DB, table string, opts ...Option) *Gateway {
	g := &Gateway{
		db:        db,
		table:     table,
		orderable: map[string]bool{"id": true},
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		tracer:    otel.Tracer("peopledesk/internal/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FindByID returns the record with the given id within the caller's tenant.
// Soft-deleted rows are treated as absent. Returns sentinel.ErrNotFound when
// no such row is visible, including rows that exist under another tenant.
func (g *Gateway) FindByID(ctx context.Context, tc tenancy.Context, recordID string) (Record, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ctx, span := g.startSpan(ctx, "FindByID")
	defer span.End()

	query := g.builder.Select("*").
		From(g.table).
		Where(sq.Eq{"tenant_id": tc.TenantID.String(), "id": recordID}).
		Where(sq.Eq{"deleted_at": nil}).
		Limit(1)

	records, err := g.queryRecords(ctx, query)
	if err != nil {
		return nil, g.fail(span, err)
	}
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return records[0], nil
}

// FindAll returns a page of the tenant's records. Zero-value options mean
// limit 100, offset 0, ordered by id ascending.
func (g *Gateway) FindAll(ctx context.Context, tc tenancy.Context, opts ListOptions) ([]Record, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ctx, span := g.startSpan(ctx, "FindAll")
	defer span.End()

	limit := opts.Limit
	if limit == 0 {
		limit = defaultLimit
	}

	query := g.builder.Select("*").
		From(g.table).
		Where(sq.Eq{"tenant_id": tc.TenantID.String()}).
		OrderBy(g.orderClause(opts.OrderBy, opts.Order)).
		Limit(limit).
		Offset(opts.Offset)
	if !opts.IncludeDeleted {
		query = query.Where(sq.Eq{"deleted_at": nil})
	}

	records, err := g.queryRecords(ctx, query)
	if err != nil {
		return nil, g.fail(span, err)
	}
	return records, nil
}

// Create inserts a new record scoped to the caller's tenant. The tenant_id
// always comes from the context; any tenant value in data is discarded, so a
// payload can never write into another tenant. Generates an id when the
// caller supplies none and stamps created_at/updated_at.
func (g *Gateway) Create(ctx context.Context, tc tenancy.Context, data Record) (Record, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ctx, span := g.startSpan(ctx, "Create")
	defer span.End()

	row, err := writableColumns(data)
	if err != nil {
		return nil, err
	}
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	now := requestcontext.Now(ctx)
	row["tenant_id"] = tc.TenantID.String()
	row["created_at"] = now
	row["updated_at"] = now

	query := g.builder.Insert(g.table).SetMap(sq.Eq(row))
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, g.fail(span, fmt.Errorf("build insert: %w", err))
	}
	if _, err := g.db.ExecContext(ctx, sqlText, args...); err != nil {
		return nil, g.fail(span, fmt.Errorf("insert into %s: %w", g.table, err))
	}

	created := Record{}
	for k, v := range row {
		created[k] = v
	}
	return created, nil
}

// Update applies data to the record with the given id, scoped by tenant AND
// id, and bumps updated_at. Returns sentinel.ErrNotFound when the row does
// not exist within the tenant (or is soft-deleted).
func (g *Gateway) Update(ctx context.Context, tc tenancy.Context, recordID string, data Record) (Record, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ctx, span := g.startSpan(ctx, "Update")
	defer span.End()

	row, err := writableColumns(data)
	if err != nil {
		return nil, err
	}
	delete(row, "id")
	row["updated_at"] = requestcontext.Now(ctx)

	query := g.builder.Update(g.table).
		SetMap(sq.Eq(row)).
		Where(sq.Eq{"tenant_id": tc.TenantID.String(), "id": recordID}).
		Where(sq.Eq{"deleted_at": nil})

	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, g.fail(span, fmt.Errorf("build update: %w", err))
	}
	res, err := g.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, g.fail(span, fmt.Errorf("update %s: %w", g.table, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, g.fail(span, fmt.Errorf("update %s: rows affected: %w", g.table, err))
	}
	if affected == 0 {
		return nil, sentinel.ErrNotFound
	}

	return g.FindByID(ctx, tc, recordID)
}

// Delete soft-deletes the record by setting deleted_at. The row stays in the
// table but disappears from default reads. Returns sentinel.ErrNotFound when
// no visible row matched.
func (g *Gateway) Delete(ctx context.Context, tc tenancy.Context, recordID string) error {
	if err := tc.Require(); err != nil {
		return err
	}
	ctx, span := g.startSpan(ctx, "Delete")
	defer span.End()

	query := g.builder.Update(g.table).
		Set("deleted_at", requestcontext.Now(ctx)).
		Set("updated_at", requestcontext.Now(ctx)).
		Where(sq.Eq{"tenant_id": tc.TenantID.String(), "id": recordID}).
		Where(sq.Eq{"deleted_at": nil})

	return g.execExpectingRow(ctx, span, query)
}

// HardDelete physically removes the record, tenant-scoped.
func (g *Gateway) HardDelete(ctx context.Context, tc tenancy.Context, recordID string) error {
	if err := tc.Require(); err != nil {
		return err
	}
	ctx, span := g.startSpan(ctx, "HardDelete")
	defer span.End()

	query := g.builder.Delete(g.table).
		Where(sq.Eq{"tenant_id": tc.TenantID.String(), "id": recordID})

	return g.execExpectingRow(ctx, span, query)
}

// Restore clears deleted_at on a soft-deleted record, making it visible to
// default reads again.
func (g *Gateway) Restore(ctx context.Context, tc tenancy.Context, recordID string) error {
	if err := tc.Require(); err != nil {
		return err
	}
	ctx, span := g.startSpan(ctx, "Restore")
	defer span.End()

	query := g.builder.Update(g.table).
		Set("deleted_at", nil).
		Set("updated_at", requestcontext.Now(ctx)).
		Where(sq.Eq{"tenant_id": tc.TenantID.String(), "id": recordID}).
		Where(sq.NotEq{"deleted_at": nil})

	return g.execExpectingRow(ctx, span, query)
}

// Count returns the number of live (not soft-deleted) records in the tenant.
func (g *Gateway) Count(ctx context.Context, tc tenancy.Context) (int, error) {
	if err := tc.Require(); err != nil {
		return 0, err
	}
	ctx, span := g.startSpan(ctx, "Count")
	defer span.End()

	query := g.builder.Select("COUNT(*)").
		From(g.table).
		Where(sq.Eq{"tenant_id": tc.TenantID.String()}).
		Where(sq.Eq{"deleted_at": nil})

	sqlText, args, err := query.ToSql()
	if err != nil {
		return 0, g.fail(span, fmt.Errorf("build count: %w", err))
	}
	var count int
	if err := g.db.QueryRowContext(ctx, sqlText, args...).Scan(&count); err != nil {
		return 0, g.fail(span, fmt.Errorf("count %s: %w", g.table, err))
	}
	return count, nil
}

// Exists reports whether a live record with the given id exists in the tenant.
func (g *Gateway) Exists(ctx context.Context, tc tenancy.Context, recordID string) (bool, error) {
	if err := tc.Require(); err != nil {
		return false, err
	}
	ctx, span := g.startSpan(ctx, "Exists")
	defer span.End()

	query := g.builder.Select("1").
		From(g.table).
		Where(sq.Eq{"tenant_id": tc.TenantID.String(), "id": recordID}).
		Where(sq.Eq{"deleted_at": nil}).
		Limit(1)

	sqlText, args, err := query.ToSql()
	if err != nil {
		return false, g.fail(span, fmt.Errorf("build exists: %w", err))
	}
	var one int
	err = g.db.QueryRowContext(ctx, sqlText, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, g.fail(span, fmt.Errorf("exists %s: %w", g.table, err))
	}
	return true, nil
}

// FindWhere returns all live tenant records matching the conjunction of the
// given column = value conditions.
func (g *Gateway) FindWhere(ctx context.Context, tc tenancy.Context, conditions Conditions) ([]Record, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ctx, span := g.startSpan(ctx, "FindWhere")
	defer span.End()

	where, err := conditionClause(conditions)
	if err != nil {
		return nil, err
	}
	query := g.builder.Select("*").
		From(g.table).
		Where(sq.Eq{"tenant_id": tc.TenantID.String()}).
		Where(sq.Eq{"deleted_at": nil}).
		Where(where)

	records, err := g.queryRecords(ctx, query)
	if err != nil {
		return nil, g.fail(span, err)
	}
	return records, nil
}

// FindOneWhere returns the first live tenant record matching the conditions,
// or nil when none matched. Absence is not an error here; use FindByID when
// a missing row should be reported.
func (g *Gateway) FindOneWhere(ctx context.Context, tc tenancy.Context, conditions Conditions) (Record, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ctx, span := g.startSpan(ctx, "FindOneWhere")
	defer span.End()

	where, err := conditionClause(conditions)
	if err != nil {
		return nil, err
	}
	query := g.builder.Select("*").
		From(g.table).
		Where(sq.Eq{"tenant_id": tc.TenantID.String()}).
		Where(sq.Eq{"deleted_at": nil}).
		Where(where).
		Limit(1)

	records, err := g.queryRecords(ctx, query)
	if err != nil {
		return nil, g.fail(span, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// orderClause validates direction against the allow-list and the column
// against the configured orderable set; both silently fall back rather than
// letting caller input reach query text.
func (g *Gateway) orderClause(orderBy, order string) string {
	if !g.orderable[orderBy] {
		orderBy = "id"
	}
	direction := "ASC"
	if strings.EqualFold(order, "DESC") {
		direction = "DESC"
	}
	return orderBy + " " + direction
}

func (g *Gateway) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "gateway."+op,
		trace.WithAttributes(attribute.String("db.table", g.table)))
}

func (g *Gateway) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (g *Gateway) execExpectingRow(ctx context.Context, span trace.Span, query sq.Sqlizer) error {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return g.fail(span, fmt.Errorf("build statement: %w", err))
	}
	res, err := g.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return g.fail(span, fmt.Errorf("exec on %s: %w", g.table, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return g.fail(span, fmt.Errorf("exec on %s: rows affected: %w", g.table, err))
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (g *Gateway) queryRecords(ctx context.Context, query sq.SelectBuilder) ([]Record, error) {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := g.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", g.table, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// writableColumns validates caller-supplied column names and strips the
// reserved ones the gateway owns.
func writableColumns(data Record) (map[string]any, error) {
	row := make(map[string]any, len(data))
	for k, v := range data {
		if reservedColumns[k] {
			continue
		}
		if !columnPattern.MatchString(k) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid column name %q", k))
		}
		row[k] = v
	}
	return row, nil
}

func conditionClause(conditions Conditions) (sq.Eq, error) {
	eq := sq.Eq{}
	for k, v := range conditions {
		if reservedColumns[k] {
			continue
		}
		if !columnPattern.MatchString(k) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid column name %q", k))
		}
		eq[k] = v
	}
	return eq, nil
}

// scanRecords turns a generic row set into Records, normalizing driver byte
// slices to strings.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record := make(Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}
