package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "peopledesk/pkg/domain-errors"
)

func TestParseTenantID(t *testing.T) {
	t.Run("valid uuid", func(t *testing.T) {
		raw := uuid.NewString()
		tenantID, err := ParseTenantID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, tenantID.String())
		assert.False(t, tenantID.IsNil())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		for _, raw := range []string{"", "not-a-uuid", "12345"} {
			_, err := ParseTenantID(raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "input %q", raw)
		}
	})

	t.Run("rejects the nil uuid", func(t *testing.T) {
		_, err := ParseTenantID(uuid.Nil.String())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestParseUserID(t *testing.T) {
	raw := uuid.NewString()
	userID, err := ParseUserID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, userID.String())

	_, err = ParseUserID("nope")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestZeroValueIsNil(t *testing.T) {
	assert.True(t, TenantID{}.IsNil())
	assert.True(t, UserID{}.IsNil())
	assert.False(t, NewTenantID().IsNil())
}
