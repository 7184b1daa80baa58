package audit_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"peopledesk/internal/audit"
	"peopledesk/internal/audit/metrics"
	"peopledesk/internal/audit/store/memory"
	"peopledesk/internal/tenancy"
	id "peopledesk/pkg/domain"
	"peopledesk/pkg/requestcontext"
)

type TrackerSuite struct {
	suite.Suite
	store   *memory.Store
	tracker *audit.Tracker
	ctx     context.Context
	tc      tenancy.Context
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.store = memory.NewStore()
	s.tracker = audit.NewTracker(s.store, audit.WithLogger(slog.New(slog.DiscardHandler)))
	s.ctx = context.Background()
	s.tc = tenancy.New(id.NewTenantID()).WithUser(id.NewUserID())
}

func (s *TrackerSuite) meta() audit.RequestMeta {
	return audit.RequestMeta{
		UserEmail: "hr@example.com",
		UserRole:  "hr_admin",
		IPAddress: "10.1.2.3",
		UserAgent: "peopledesk-test/1.0",
		SessionID: "sess-1",
	}
}

func (s *TrackerSuite) TestLogCreate() {
	s.Run("stores sanitized new state only", func() {
		entry := s.tracker.LogCreate(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada Lovelace",
			map[string]any{"name": "Ada Lovelace", "password": "x", "salary": 52000})

		s.Require().NotNil(entry)
		s.Equal(audit.ActionCreate, entry.Action)
		s.Equal(map[string]any{"name": "Ada Lovelace", "salary": "52****00"}, entry.NewValues)
		s.Nil(entry.PreviousValues)
		s.Nil(entry.Changes)
	})

	s.Run("fills identity and generates a request id", func() {
		entry := s.tracker.LogCreate(s.ctx, s.tc, s.meta(), "employee", "e-2", "B", map[string]any{"name": "B"})

		s.Require().NotNil(entry)
		s.Equal(s.tc.TenantID, entry.TenantID)
		s.Equal(s.tc.UserID, entry.UserID)
		s.Equal("hr@example.com", entry.UserEmail)
		s.Equal("hr_admin", entry.UserRole)
		s.Equal("10.1.2.3", entry.IPAddress)
		s.NotEmpty(entry.RequestID)
		s.False(entry.CreatedAt.IsZero())
	})

	s.Run("keeps a caller-supplied request id for correlation", func() {
		meta := s.meta()
		meta.RequestID = "req-42"
		first := s.tracker.LogCreate(s.ctx, s.tc, meta, "employee", "e-3", "C", map[string]any{"name": "C"})
		second := s.tracker.LogDelete(s.ctx, s.tc, meta, "employee", "e-3", "C", map[string]any{"name": "C"})

		s.Require().NotNil(first)
		s.Require().NotNil(second)
		s.Equal("req-42", first.RequestID)
		s.Equal("req-42", second.RequestID)
	})
}

func (s *TrackerSuite) TestLogUpdate() {
	s.Run("computes masked minimal diff", func() {
		entry := s.tracker.LogUpdate(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada",
			map[string]any{"name": "Ada", "salary": 40000, "department": "R&D"},
			map[string]any{"name": "Ada", "salary": 45000, "department": "R&D"})

		s.Require().NotNil(entry)
		s.Equal(map[string]audit.Change{
			"salary": {Old: "40****00", New: "45****00"},
		}, entry.Changes)
	})

	s.Run("no effective change stores no diff object", func() {
		snapshot := map[string]any{"name": "Ada"}
		entry := s.tracker.LogUpdate(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada", snapshot, map[string]any{"name": "Ada"})

		s.Require().NotNil(entry)
		s.Nil(entry.Changes)
		s.Equal(map[string]any{"name": "Ada"}, entry.PreviousValues)
	})

	s.Run("snapshots are sanitized independently of the diff", func() {
		entry := s.tracker.LogUpdate(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada",
			map[string]any{"name": "A", "api_key": "k1"},
			map[string]any{"name": "B", "api_key": "k2"})

		s.Require().NotNil(entry)
		s.NotContains(entry.PreviousValues, "api_key")
		s.NotContains(entry.NewValues, "api_key")
		s.Equal(map[string]audit.Change{"name": {Old: "A", New: "B"}}, entry.Changes)
	})
}

func (s *TrackerSuite) TestLogDelete() {
	entry := s.tracker.LogDelete(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada",
		map[string]any{"name": "Ada", "salary": 40000},
		audit.WithReason("offboarding"))

	s.Require().NotNil(entry)
	s.Equal(audit.ActionDelete, entry.Action)
	s.Equal(map[string]any{"name": "Ada", "salary": "40****00"}, entry.PreviousValues)
	s.Nil(entry.NewValues)
	s.Equal("offboarding", entry.Reason)
}

func (s *TrackerSuite) TestLogViewSensitive() {
	entry := s.tracker.LogViewSensitive(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada",
		[]string{"salary", "bank_account_number"})

	s.Require().NotNil(entry)
	s.Equal(audit.ActionViewSensitive, entry.Action)
	s.Equal([]string{"salary", "bank_account_number"}, entry.Metadata["fields_viewed"])
	s.Nil(entry.PreviousValues)
	s.Nil(entry.NewValues)
}

func (s *TrackerSuite) TestBulkActions() {
	s.Run("bulk update has no resource id and a summary name", func() {
		entry := s.tracker.LogBulkUpdate(s.ctx, s.tc, s.meta(), "employee", 17,
			map[string]any{"department": "Sales", "salary": 30000})

		s.Require().NotNil(entry)
		s.Equal(audit.ActionBulkUpdate, entry.Action)
		s.Empty(entry.ResourceID)
		s.Equal("17 employee records", entry.ResourceName)
		s.Equal(17, entry.Metadata["affected_count"])
		s.Equal(map[string]any{"department": "Sales", "salary": "30****00"}, entry.Metadata["criteria"])
	})

	s.Run("bulk delete mirrors bulk update", func() {
		entry := s.tracker.LogBulkDelete(s.ctx, s.tc, s.meta(), "document", 3, map[string]any{"status": "expired"})

		s.Require().NotNil(entry)
		s.Equal(audit.ActionBulkDelete, entry.Action)
		s.Equal("3 document records", entry.ResourceName)
	})
}

func (s *TrackerSuite) TestRestoreAndArchive() {
	restored := s.tracker.LogRestore(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada", map[string]any{"name": "Ada"})
	s.Require().NotNil(restored)
	s.Equal(audit.ActionRestore, restored.Action)
	s.Equal(map[string]any{"name": "Ada"}, restored.NewValues)

	archived := s.tracker.LogArchive(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada", map[string]any{"name": "Ada"})
	s.Require().NotNil(archived)
	s.Equal(audit.ActionArchive, archived.Action)
	s.Equal(map[string]any{"name": "Ada"}, archived.PreviousValues)
}

func (s *TrackerSuite) TestMetadataOptionIsSanitized() {
	entry := s.tracker.LogCreate(s.ctx, s.tc, s.meta(), "document", "d-1", "Contract",
		map[string]any{"title": "Contract"},
		audit.WithMetadata(map[string]any{"source": "import", "upload_token": "t"}))

	s.Require().NotNil(entry)
	s.Equal("import", entry.Metadata["source"])
	s.NotContains(entry.Metadata, "upload_token")
}

func (s *TrackerSuite) TestUsesRequestScopedTime() {
	at := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, at)

	entry := s.tracker.LogCreate(ctx, s.tc, s.meta(), "employee", "e-1", "Ada", map[string]any{"name": "Ada"})

	s.Require().NotNil(entry)
	s.True(entry.CreatedAt.Equal(at))
}

// failingStore simulates a broken audit sink.
type failingStore struct{}

func (failingStore) Append(context.Context, *audit.Entry) error {
	return errors.New("disk full")
}
func (failingStore) List(context.Context, id.TenantID, audit.Filter) ([]audit.Entry, error) {
	return nil, errors.New("disk full")
}
func (failingStore) Count(context.Context, id.TenantID, audit.Filter) (int, error) {
	return 0, errors.New("disk full")
}

// panickingStore simulates a sink that blows up mid-write.
type panickingStore struct{ failingStore }

func (panickingStore) Append(context.Context, *audit.Entry) error {
	panic("corrupted state")
}

func (s *TrackerSuite) TestMetricsCountWrites() {
	counter := metrics.Default().EntriesWritten.WithLabelValues(string(audit.ActionCreate))
	before := testutil.ToFloat64(counter)

	entry := s.tracker.LogCreate(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada", map[string]any{"name": "Ada"})

	s.Require().NotNil(entry)
	s.Equal(before+1, testutil.ToFloat64(counter))
}

func (s *TrackerSuite) TestMetricsCountDroppedWrites() {
	tracker := audit.NewTracker(failingStore{}, audit.WithLogger(slog.New(slog.DiscardHandler)))
	before := testutil.ToFloat64(metrics.Default().WriteFailures)

	entry := tracker.LogCreate(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada", map[string]any{"name": "Ada"})

	s.Nil(entry)
	s.Equal(before+1, testutil.ToFloat64(metrics.Default().WriteFailures))
}

func (s *TrackerSuite) TestAuditFailuresNeverPropagate() {
	s.Run("store error yields nil, no panic, no error", func() {
		tracker := audit.NewTracker(failingStore{}, audit.WithLogger(slog.New(slog.DiscardHandler)))

		entry := tracker.LogUpdate(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada",
			map[string]any{"name": "A"}, map[string]any{"name": "B"})

		s.Nil(entry)
	})

	s.Run("store panic is recovered", func() {
		tracker := audit.NewTracker(panickingStore{}, audit.WithLogger(slog.New(slog.DiscardHandler)))

		s.NotPanics(func() {
			s.Nil(tracker.LogDelete(s.ctx, s.tc, s.meta(), "employee", "e-1", "Ada", map[string]any{"name": "A"}))
		})
	})
}
