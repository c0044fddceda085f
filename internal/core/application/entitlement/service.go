package entitlement

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/arbhunter/arbd/internal/core/domain"
	"github.com/arbhunter/arbd/internal/core/ports"
)

// service answers entitlement checks with a pure read against the user
// repository. Nothing is cached: every call hits the store so a revocation
// is observed within one alert interval.
type service struct {
	repo domain.UserRepository
}

// NewService returns an EntitlementGate backed by the given repository.
func NewService(repo domain.UserRepository) ports.EntitlementGate {
	return &service{repo}
}

func (s *service) IsActive(ctx context.Context, userID int64) bool {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			log.WithField("user", userID).Debug("unknown user, entitlement not active")
			return false
		}
		// fail closed: an unconfirmed entitlement never produces alerts,
		// even if that pauses a legitimate premium user
		log.WithError(err).WithField("user", userID).
			Error("cannot check entitlement, treating as not active")
		return false
	}

	return user.IsPremium
}
