package dbbadger

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"

	"github.com/arbhunter/arbd/internal/core/domain"
)

// UserRepositoryImpl persists users with their premium entitlement on a
// badger store. An empty base dir opens the store in memory, which is what
// tests use.
type UserRepositoryImpl struct {
	store *badgerhold.Store
}

// NewUserRepositoryImpl opens (or creates if not exists) the users db under
// the given base data dir.
func NewUserRepositoryImpl(
	baseDbDir string, logger badger.Logger,
) (*UserRepositoryImpl, error) {
	var usersDir string
	if len(baseDbDir) > 0 {
		usersDir = filepath.Join(baseDbDir, "users")
	}

	store, err := createDb(usersDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening users db: %w", err)
	}
	return &UserRepositoryImpl{store}, nil
}

func (r *UserRepositoryImpl) GetOrCreateUser(
	ctx context.Context, telegramID int64, username string,
) (*domain.User, error) {
	user, err := r.GetUser(ctx, telegramID)
	if err == nil {
		return user, nil
	}
	if err != domain.ErrUserNotFound {
		return nil, err
	}

	user, err = domain.NewUser(telegramID, username)
	if err != nil {
		return nil, err
	}

	if err := r.store.Insert(telegramID, user); err != nil {
		if err == badgerhold.ErrKeyExists {
			return r.GetUser(ctx, telegramID)
		}
		return nil, err
	}

	return user, nil
}

func (r *UserRepositoryImpl) GetUser(
	_ context.Context, telegramID int64,
) (*domain.User, error) {
	var user domain.User
	if err := r.store.Get(telegramID, &user); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}

func (r *UserRepositoryImpl) UpdateUser(
	ctx context.Context, telegramID int64,
	updateFn func(*domain.User) (*domain.User, error),
) error {
	user, err := r.GetUser(ctx, telegramID)
	if err != nil {
		return err
	}

	updatedUser, err := updateFn(user)
	if err != nil {
		return err
	}

	return r.store.Update(telegramID, updatedUser)
}

func (r *UserRepositoryImpl) Close() {
	r.store.Close()
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					err != badger.ErrNoRewrite {
					log.Error(err)
				}
			}
		}()
	}

	return db, nil
}
