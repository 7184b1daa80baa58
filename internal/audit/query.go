package audit

import (
	"context"

	id "peopledesk/pkg/domain"
	"peopledesk/pkg/platform/sentinel"
)

// Default page sizes for audit reads.
const (
	defaultTrailLimit   = 100
	defaultHistoryLimit = 50
)

// QueryService serves read-only compliance views over persisted entries.
// It exposes no write methods at all; that absence is the append-only
// enforcement at the API surface.
type QueryService struct {
	store Store
}

// NewQueryService creates a read-side service over the given store.
func NewQueryService(store Store) *QueryService {
	return &QueryService{store: store}
}

// GetAuditTrail returns entries for the tenant matching the filter, newest
// first. Filters compose conjunctively; zero limit means 100.
func (s *QueryService) GetAuditTrail(ctx context.Context, tenantID id.TenantID, filter Filter) ([]Entry, error) {
	if tenantID.IsNil() {
		return nil, sentinel.ErrTenantRequired
	}
	if filter.Limit == 0 {
		filter.Limit = defaultTrailLimit
	}
	return s.store.List(ctx, tenantID, filter)
}

// GetAuditTrailCount returns the total number of entries matching the filter
// for pagination. Limit and offset are ignored.
func (s *QueryService) GetAuditTrailCount(ctx context.Context, tenantID id.TenantID, filter Filter) (int, error) {
	if tenantID.IsNil() {
		return 0, sentinel.ErrTenantRequired
	}
	filter.Limit = 0
	filter.Offset = 0
	return s.store.Count(ctx, tenantID, filter)
}

// GetResourceHistory returns the full change history of one entity, newest
// first. Zero limit means 50.
func (s *QueryService) GetResourceHistory(ctx context.Context, tenantID id.TenantID, resourceType, resourceID string, limit int) ([]Entry, error) {
	if tenantID.IsNil() {
		return nil, sentinel.ErrTenantRequired
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	return s.store.List(ctx, tenantID, Filter{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Limit:        limit,
	})
}

// GetUserActivity returns the most recent actions performed by one actor.
// Zero limit means 50.
func (s *QueryService) GetUserActivity(ctx context.Context, tenantID id.TenantID, userID id.UserID, limit int) ([]Entry, error) {
	if tenantID.IsNil() {
		return nil, sentinel.ErrTenantRequired
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	return s.store.List(ctx, tenantID, Filter{
		UserID: userID,
		Limit:  limit,
	})
}
