// Package employee wires the generic gateway and the audit tracker into a
// concrete business service for employee records. It is the reference for
// how every domain service in the system composes the two: load old state,
// mutate through the gateway, then hand before/after snapshots to the
// tracker. The audit write happens after the mutation and never fails the
// operation.
package employee

import (
	"context"

	"peopledesk/internal/audit"
	"peopledesk/internal/gateway"
	"peopledesk/internal/tenancy"
)

const resourceType = "employee"

// SensitiveFields are the compensation/identity fields whose reads get a
// VIEW_SENSITIVE entry.
var SensitiveFields = []string{"salary", "bank_account_number", "sort_code", "national_insurance_number"}

// RecordStore is the slice of the gateway contract this service needs.
// *gateway.Gateway satisfies it.
type RecordStore interface {
	FindByID(ctx context.Context, tc tenancy.Context, recordID string) (gateway.Record, error)
	Create(ctx context.Context, tc tenancy.Context, data gateway.Record) (gateway.Record, error)
	Update(ctx context.Context, tc tenancy.Context, recordID string, data gateway.Record) (gateway.Record, error)
	Delete(ctx context.Context, tc tenancy.Context, recordID string) error
	Restore(ctx context.Context, tc tenancy.Context, recordID string) error
}

type Service struct {
	records RecordStore
	tracker *audit.Tracker
}

func NewService(records RecordStore, tracker *audit.Tracker) *Service {
	return &Service{records: records, tracker: tracker}
}

// Create inserts a new employee record and audits the creation.
func (s *Service) Create(ctx context.Context, tc tenancy.Context, meta audit.RequestMeta, data gateway.Record) (gateway.Record, error) {
	created, err := s.records.Create(ctx, tc, data)
	if err != nil {
		return nil, err
	}
	recordID, _ := created["id"].(string)
	s.tracker.LogCreate(ctx, tc, meta, resourceType, recordID, displayName(created), created)
	return created, nil
}

// Update mutates an employee record and audits the field-level diff between
// the states before and after.
func (s *Service) Update(ctx context.Context, tc tenancy.Context, meta audit.RequestMeta, recordID string, data gateway.Record, opts ...audit.LogOption) (gateway.Record, error) {
	previous, err := s.records.FindByID(ctx, tc, recordID)
	if err != nil {
		return nil, err
	}
	updated, err := s.records.Update(ctx, tc, recordID, data)
	if err != nil {
		return nil, err
	}
	s.tracker.LogUpdate(ctx, tc, meta, resourceType, recordID, displayName(updated),
		withoutLifecycle(previous), withoutLifecycle(updated), opts...)
	return updated, nil
}

// SoftDelete marks an employee record deleted and audits its final state.
func (s *Service) SoftDelete(ctx context.Context, tc tenancy.Context, meta audit.RequestMeta, recordID string, opts ...audit.LogOption) error {
	record, err := s.records.FindByID(ctx, tc, recordID)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, tc, recordID); err != nil {
		return err
	}
	s.tracker.LogDelete(ctx, tc, meta, resourceType, recordID, displayName(record), record, opts...)
	return nil
}

// Restore brings a soft-deleted employee record back and audits the restore.
func (s *Service) Restore(ctx context.Context, tc tenancy.Context, meta audit.RequestMeta, recordID string, opts ...audit.LogOption) (gateway.Record, error) {
	if err := s.records.Restore(ctx, tc, recordID); err != nil {
		return nil, err
	}
	record, err := s.records.FindByID(ctx, tc, recordID)
	if err != nil {
		return nil, err
	}
	s.tracker.LogRestore(ctx, tc, meta, resourceType, recordID, displayName(record), record, opts...)
	return record, nil
}

// Archive transitions an employee record to archived status and audits the
// pre-archive snapshot.
func (s *Service) Archive(ctx context.Context, tc tenancy.Context, meta audit.RequestMeta, recordID string, opts ...audit.LogOption) error {
	previous, err := s.records.FindByID(ctx, tc, recordID)
	if err != nil {
		return err
	}
	if _, err := s.records.Update(ctx, tc, recordID, gateway.Record{"status": "archived"}); err != nil {
		return err
	}
	s.tracker.LogArchive(ctx, tc, meta, resourceType, recordID, displayName(previous), previous, opts...)
	return nil
}

// ViewSensitive returns the employee record while recording that the actor
// accessed its sensitive fields. Field names are audited, never values.
func (s *Service) ViewSensitive(ctx context.Context, tc tenancy.Context, meta audit.RequestMeta, recordID string) (gateway.Record, error) {
	record, err := s.records.FindByID(ctx, tc, recordID)
	if err != nil {
		return nil, err
	}
	s.tracker.LogViewSensitive(ctx, tc, meta, resourceType, recordID, displayName(record), SensitiveFields)
	return record, nil
}

// lifecycleColumns are gateway-owned and change on every write, so they
// carry no compliance signal. They stay out of update diffs; point-in-time
// snapshots (create, delete, archive) keep them.
var lifecycleColumns = map[string]bool{
	"tenant_id":  true,
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
}

func withoutLifecycle(record gateway.Record) gateway.Record {
	out := make(gateway.Record, len(record))
	for k, v := range record {
		if lifecycleColumns[k] {
			continue
		}
		out[k] = v
	}
	return out
}

func displayName(record gateway.Record) string {
	first, _ := record["first_name"].(string)
	last, _ := record["last_name"].(string)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	default:
		name, _ := record["id"].(string)
		return name
	}
}
