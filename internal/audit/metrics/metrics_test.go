package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncEntriesWritten("CREATE")
	m.IncWriteFailures()
	m.ObserveWrite(time.Now())

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["peopledesk_audit_entries_written_total"])
	assert.True(t, names["peopledesk_audit_write_failures_total"])
	assert.True(t, names["peopledesk_audit_write_duration_seconds"])
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
