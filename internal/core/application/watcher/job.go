package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/arbhunter/arbd/internal/core/domain"
	"github.com/arbhunter/arbd/internal/core/ports"
	"github.com/arbhunter/arbd/pkg/stats"
)

// jobHandler is one user's recurring check. The first tick fires after
// firstTickDelay, the following ones every interval. Ticks are never
// reentrant: a tick runs inline in the handler goroutine, so an overrunning
// tick delays the next one instead of racing with it.
type jobHandler struct {
	userID         int64
	interval       time.Duration
	firstTickDelay time.Duration
	svc            *Service

	stopOnce sync.Once
	stopChan chan struct{}
}

func newJobHandler(
	userID int64, interval, firstTickDelay time.Duration, svc *Service,
) *jobHandler {
	return &jobHandler{
		userID:         userID,
		interval:       interval,
		firstTickDelay: firstTickDelay,
		svc:            svc,
		stopChan:       make(chan struct{}),
	}
}

func (h *jobHandler) start() {
	defer h.svc.wg.Done()

	timer := time.NewTimer(h.firstTickDelay)
	defer timer.Stop()

	select {
	case <-h.stopChan:
		return
	case <-timer.C:
		if !h.tick() {
			h.svc.detach(h)
			return
		}
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case <-ticker.C:
			if !h.tick() {
				h.svc.detach(h)
				return
			}
		}
	}
}

func (h *jobHandler) stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// tick runs one check for the user and reports whether the job survives.
// No error is allowed to escape into the scheduling loop: every failure has
// a defined fallback and a recover backstops unexpected panics.
func (h *jobHandler) tick() (keepAlive bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("user", h.userID).
				Errorf("recovered from panic in tick: %v", rec)
			keepAlive = true
		}
	}()

	ctx := context.Background()
	defer stats.TicksProcessed.Inc()

	// entitlement is re-checked on every tick so that revocation takes
	// effect within one interval
	if !h.svc.gate.IsActive(ctx, h.userID) {
		log.WithField("user", h.userID).
			Info("entitlement not active, cancelling alert job")
		return false
	}

	for _, symbol := range h.svc.marketSvc.Symbols() {
		quotes := h.svc.marketSvc.FetchQuotes(ctx, symbol)

		spread := domain.ComputeSpread(symbol, quotes)
		if spread == nil {
			log.WithField("symbol", symbol).
				Debugf("got %d quotes, at least 2 needed, skipping symbol", len(quotes))
			continue
		}

		if !spread.ExceedsThreshold(h.svc.threshold) {
			continue
		}

		if !h.deliver(ctx, spread) {
			return false
		}
	}

	return true
}

// deliver sends one alert and reports whether the job survives the outcome.
// A transient failure keeps the job alive without retrying within the tick,
// the next tick will attempt again naturally.
func (h *jobHandler) deliver(ctx context.Context, spread *domain.SpreadResult) bool {
	alert := ports.Alert{
		ID:                uuid.New().String(),
		Symbol:            spread.Symbol,
		CheapExchange:     spread.MinExchange,
		CheapPrice:        spread.MinPrice,
		ExpensiveExchange: spread.MaxExchange,
		ExpensivePrice:    spread.MaxPrice,
		SpreadPercent:     spread.SpreadPercent,
	}

	entry := log.WithField("user", h.userID).
		WithField("alert", alert.ID).
		WithField("symbol", alert.Symbol)

	switch outcome := h.svc.notifier.Send(ctx, h.userID, alert); outcome {
	case ports.DeliverySuccess:
		stats.AlertsSent.Inc()
		entry.Debug("alert delivered")
		return true
	case ports.DeliveryPermanentFailure:
		stats.DeliveryFailures.WithLabelValues(outcome.String()).Inc()
		entry.Warn("user unreachable, cancelling alert job")
		return false
	default:
		stats.DeliveryFailures.WithLabelValues(outcome.String()).Inc()
		entry.Warn("alert delivery failed, will retry on next tick")
		return true
	}
}
