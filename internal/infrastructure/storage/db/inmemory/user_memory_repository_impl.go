package inmemory

import (
	"context"
	"sync"

	"github.com/arbhunter/arbd/internal/core/domain"
)

// UserRepositoryImpl represents an in memory storage
type UserRepositoryImpl struct {
	users map[int64]domain.User

	lock *sync.RWMutex
}

// NewUserRepositoryImpl returns a new empty UserRepositoryImpl
func NewUserRepositoryImpl() *UserRepositoryImpl {
	return &UserRepositoryImpl{
		users: map[int64]domain.User{},
		lock:  &sync.RWMutex{},
	}
}

func (r *UserRepositoryImpl) GetOrCreateUser(
	_ context.Context, telegramID int64, username string,
) (*domain.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if user, ok := r.users[telegramID]; ok {
		return &user, nil
	}

	user, err := domain.NewUser(telegramID, username)
	if err != nil {
		return nil, err
	}

	r.users[telegramID] = *user
	return user, nil
}

func (r *UserRepositoryImpl) GetUser(
	_ context.Context, telegramID int64,
) (*domain.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	user, ok := r.users[telegramID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (r *UserRepositoryImpl) UpdateUser(
	_ context.Context, telegramID int64,
	updateFn func(*domain.User) (*domain.User, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	user, ok := r.users[telegramID]
	if !ok {
		return domain.ErrUserNotFound
	}

	updatedUser, err := updateFn(&user)
	if err != nil {
		return err
	}

	r.users[telegramID] = *updatedUser
	return nil
}
