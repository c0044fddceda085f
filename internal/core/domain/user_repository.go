package domain

import "context"

// UserRepository is the entitlement store contract. Implementations must
// guarantee last-write-visible-to-next-read consistency; transactional
// guarantees beyond that are out of scope.
type UserRepository interface {
	// GetOrCreateUser returns the user with the given id, registering it
	// first if unknown.
	GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*User, error)
	// GetUser returns the user with the given id or ErrUserNotFound.
	GetUser(ctx context.Context, telegramID int64) (*User, error)
	// UpdateUser applies updateFn to the stored user under the repository's
	// write guard and persists the result.
	UpdateUser(
		ctx context.Context, telegramID int64,
		updateFn func(*User) (*User, error),
	) error
}
