package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the data-access
// gateway return these (optionally wrapped) so services can translate them
// into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist within the caller's tenant scope
// - ErrConflict: uniqueness or concurrent-update conflict
// - ErrUnavailable: backing store temporarily unavailable
//
// ErrTenantRequired is the exception: it marks a programming/configuration
// error (a data operation attempted without tenant context). It is fatal and
// must never be retried or swallowed.
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUnavailable    = errors.New("unavailable")
	ErrTenantRequired = errors.New("tenant context required")
)
