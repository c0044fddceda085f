package watcher

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/arbhunter/arbd/internal/core/application/market"
	"github.com/arbhunter/arbd/internal/core/ports"
)

// Service owns the set of active alert jobs keyed by user id. Each job runs
// on its own interval, concurrently with respect to the others, and is
// cancelled either explicitly, on entitlement loss detected at tick time, or
// on a permanent delivery failure reported by the notifier.
type Service struct {
	marketSvc *market.Service
	gate      ports.EntitlementGate
	notifier  ports.Notifier

	threshold      decimal.Decimal
	firstTickDelay time.Duration

	mtx  sync.Mutex
	jobs map[int64]*jobHandler
	wg   sync.WaitGroup
}

// Opts defines the parameters needed for creating a watcher service with
// NewService method.
type Opts struct {
	MarketSvc *market.Service
	Gate      ports.EntitlementGate
	Notifier  ports.Notifier
	// Threshold is the spread percentage above which alerts fire.
	Threshold decimal.Decimal
	// FirstTickDelay is the delay before the first tick of a new job.
	FirstTickDelay time.Duration
}

// NewService returns a stopped watcher ready to schedule alert jobs.
func NewService(opts Opts) *Service {
	return &Service{
		marketSvc:      opts.MarketSvc,
		gate:           opts.Gate,
		notifier:       opts.Notifier,
		threshold:      opts.Threshold,
		firstTickDelay: opts.FirstTickDelay,
		jobs:           make(map[int64]*jobHandler),
	}
}

// Activate creates a new alert job for the given user ticking on the given
// interval. At most one job per user exists at all times: any prior job for
// the same user is cancelled first, so activation is a replace, not an add.
func (s *Service) Activate(userID int64, interval time.Duration) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if prev, ok := s.jobs[userID]; ok {
		prev.stop()
	}

	handler := newJobHandler(userID, interval, s.firstTickDelay, s)
	s.jobs[userID] = handler

	s.wg.Add(1)
	go handler.start()

	log.WithField("user", userID).
		WithField("interval", interval).
		Info("alert job activated")
}

// Cancel stops the user's job and drops it from the set. It is idempotent:
// cancelling a user without a job is a no-op.
func (s *Service) Cancel(userID int64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	handler, ok := s.jobs[userID]
	if !ok {
		return
	}

	handler.stop()
	delete(s.jobs, userID)

	log.WithField("user", userID).Info("alert job cancelled")
}

// Stop cancels all jobs and waits for the in-flight ticks to finish. Used
// at daemon shutdown.
func (s *Service) Stop() {
	s.mtx.Lock()
	for userID, handler := range s.jobs {
		handler.stop()
		delete(s.jobs, userID)
	}
	s.mtx.Unlock()

	s.wg.Wait()
	log.Debug("watcher stopped")
}

// HasJob returns whether the user currently has a live job.
func (s *Service) HasJob(userID int64) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	_, ok := s.jobs[userID]
	return ok
}

// JobInterval returns the interval of the user's live job, if any.
func (s *Service) JobInterval(userID int64) (time.Duration, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	handler, ok := s.jobs[userID]
	if !ok {
		return 0, false
	}
	return handler.interval, true
}

// detach removes a self-terminating handler from the set. The handler is
// removed only if it is still the user's current one: an auto-cancelling
// job that raced with a replacing Activate must not drop its replacement.
func (s *Service) detach(handler *jobHandler) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if current, ok := s.jobs[handler.userID]; ok && current == handler {
		delete(s.jobs, handler.userID)
	}
}
