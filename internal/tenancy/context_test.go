package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "peopledesk/pkg/domain"
	"peopledesk/pkg/platform/sentinel"
	"peopledesk/pkg/requestcontext"
)

func TestRequire(t *testing.T) {
	t.Run("zero value is rejected", func(t *testing.T) {
		var tc Context
		assert.ErrorIs(t, tc.Require(), sentinel.ErrTenantRequired)
	})

	t.Run("populated tenant passes", func(t *testing.T) {
		tc := New(id.NewTenantID())
		assert.NoError(t, tc.Require())
	})
}

func TestHasRole(t *testing.T) {
	tc := New(id.NewTenantID()).WithRoles("hr_admin", "auditor")

	assert.True(t, tc.HasRole("auditor"))
	assert.False(t, tc.HasRole("employee"))
	assert.False(t, New(id.NewTenantID()).HasRole("auditor"))
}

func TestFromRequest(t *testing.T) {
	tenantID := id.NewTenantID()
	userID := id.NewUserID()

	ctx := requestcontext.WithTenantID(context.Background(), tenantID)
	ctx = requestcontext.WithUserID(ctx, userID)

	tc := FromRequest(ctx)
	require.NoError(t, tc.Require())
	assert.Equal(t, tenantID, tc.TenantID)
	assert.Equal(t, userID, tc.UserID)

	// An unpopulated request context yields a context that fails Require.
	assert.ErrorIs(t, FromRequest(context.Background()).Require(), sentinel.ErrTenantRequired)
}

func TestWithUserDoesNotMutateReceiver(t *testing.T) {
	base := New(id.NewTenantID())
	derived := base.WithUser(id.NewUserID())

	assert.True(t, base.UserID.IsNil())
	assert.False(t, derived.UserID.IsNil())
}
