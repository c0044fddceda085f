package ports

import "context"

// EntitlementGate answers whether a user currently holds active premium
// entitlement. Implementations must not cache: the gate is re-evaluated on
// every tick so that revocation takes effect within one interval. When the
// backing store cannot be queried the gate fails closed and reports the
// entitlement as inactive.
type EntitlementGate interface {
	IsActive(ctx context.Context, userID int64) bool
}
