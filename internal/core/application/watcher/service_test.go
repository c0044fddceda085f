package watcher_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arbhunter/arbd/internal/core/application/market"
	"github.com/arbhunter/arbd/internal/core/application/watcher"
	"github.com/arbhunter/arbd/internal/core/domain"
	"github.com/arbhunter/arbd/internal/core/ports"
)

const (
	testUser       = int64(100001)
	firstTickDelay = 10 * time.Millisecond
	tickInterval   = 50 * time.Millisecond
	// quietTime is how long we wait to prove that no further tick fires
	quietTime = 6 * tickInterval
)

var threshold = decimal.RequireFromString("1.5")

func TestActivateReplacesExistingJob(t *testing.T) {
	gate := alwaysActiveGate()
	svc := newTestWatcher(gate, &mockNotifier{}, flatSources(), "BTC/USDT")
	defer svc.Stop()

	svc.Activate(testUser, 15*time.Second)
	svc.Activate(testUser, 20*time.Second)

	require.True(t, svc.HasJob(testUser))
	interval, ok := svc.JobInterval(testUser)
	require.True(t, ok)
	require.Equal(t, 20*time.Second, interval)
}

func TestCancelIsIdempotent(t *testing.T) {
	gate := alwaysActiveGate()
	svc := newTestWatcher(gate, &mockNotifier{}, flatSources(), "BTC/USDT")
	defer svc.Stop()

	// cancelling a user without a job is a no-op
	svc.Cancel(testUser)

	svc.Activate(testUser, time.Second)
	svc.Cancel(testUser)
	svc.Cancel(testUser)
	require.False(t, svc.HasJob(testUser))
}

func TestAlertFires(t *testing.T) {
	gate := alwaysActiveGate()

	var got ports.Alert
	var gotMtx sync.Mutex
	var sends int32
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, testUser, mock.Anything).
		Run(func(args mock.Arguments) {
			gotMtx.Lock()
			got = args.Get(2).(ports.Alert)
			gotMtx.Unlock()
			atomic.AddInt32(&sends, 1)
		}).
		Return(ports.DeliverySuccess)

	svc := newTestWatcher(gate, notifier, spreadSources(), "BTC/USDT")
	defer svc.Stop()

	svc.Activate(testUser, tickInterval)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sends) > 0
	}, 2*time.Second, 5*time.Millisecond)

	gotMtx.Lock()
	defer gotMtx.Unlock()
	require.Equal(t, "BTC/USDT", got.Symbol)
	require.Equal(t, "binance", got.CheapExchange)
	require.Equal(t, "100", got.CheapPrice.String())
	require.Equal(t, "bybit", got.ExpensiveExchange)
	require.Equal(t, "101.6", got.ExpensivePrice.String())
	require.Equal(t, "1.60", got.SpreadPercent.StringFixed(2))
	require.NotEmpty(t, got.ID)
}

func TestNoAlertBelowThreshold(t *testing.T) {
	var ticks int32
	gate := countingGate(&ticks, true)
	notifier := &mockNotifier{}

	binance := newMockSource("binance")
	binance.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("100.00"), nil)
	bybit := newMockSource("bybit")
	bybit.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("101.00"), nil)

	svc := newTestWatcher(gate, notifier, []ports.PriceSource{binance, bybit}, "BTC/USDT")
	defer svc.Stop()

	svc.Activate(testUser, tickInterval)

	// a 1.00% spread never crosses the 1.5% threshold
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	require.True(t, svc.HasJob(testUser))
}

func TestInsufficientQuotesSkipsSymbol(t *testing.T) {
	var ticks int32
	gate := countingGate(&ticks, true)
	notifier := &mockNotifier{}

	binance := newMockSource("binance")
	binance.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("100.00"), nil)
	bybit := newMockSource("bybit")
	bybit.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.Decimal{}, ports.ErrSourceUnreachable)
	kucoin := newMockSource("kucoin")
	kucoin.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.Decimal{}, ports.ErrSourceUnreachable)

	svc := newTestWatcher(
		gate, notifier, []ports.PriceSource{binance, bybit, kucoin}, "BTC/USDT",
	)
	defer svc.Stop()

	svc.Activate(testUser, tickInterval)

	// ticks complete with no alert and no error surfaced
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	require.True(t, svc.HasJob(testUser))
}

func TestEntitlementRevocationCancelsJob(t *testing.T) {
	var ticks int32
	gate := &mockGate{}
	gate.On("IsActive", mock.Anything, testUser).
		Run(func(mock.Arguments) { atomic.AddInt32(&ticks, 1) }).
		Return(true).Once()
	gate.On("IsActive", mock.Anything, testUser).
		Run(func(mock.Arguments) { atomic.AddInt32(&ticks, 1) }).
		Return(false)

	svc := newTestWatcher(gate, &mockNotifier{}, flatSources(), "BTC/USDT")
	defer svc.Stop()

	svc.Activate(testUser, tickInterval)

	require.Eventually(t, func() bool {
		return !svc.HasJob(testUser)
	}, 2*time.Second, 5*time.Millisecond)

	// the tick that observed the revocation must be the last one
	seen := atomic.LoadInt32(&ticks)
	require.Equal(t, int32(2), seen)
	time.Sleep(quietTime)
	require.Equal(t, seen, atomic.LoadInt32(&ticks))
}

func TestPermanentDeliveryFailureCancelsJob(t *testing.T) {
	gate := alwaysActiveGate()

	var sends int32
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, testUser, mock.Anything).
		Run(func(mock.Arguments) { atomic.AddInt32(&sends, 1) }).
		Return(ports.DeliveryPermanentFailure)

	svc := newTestWatcher(gate, notifier, spreadSources(), "BTC/USDT")
	defer svc.Stop()

	svc.Activate(testUser, tickInterval)

	require.Eventually(t, func() bool {
		return !svc.HasJob(testUser)
	}, 2*time.Second, 5*time.Millisecond)

	// no tick N+1 after the permanent failure on tick N
	require.Equal(t, int32(1), atomic.LoadInt32(&sends))
	time.Sleep(quietTime)
	require.Equal(t, int32(1), atomic.LoadInt32(&sends))
}

func TestTransientDeliveryFailureKeepsJob(t *testing.T) {
	gate := alwaysActiveGate()

	var sends int32
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, testUser, mock.Anything).
		Run(func(mock.Arguments) { atomic.AddInt32(&sends, 1) }).
		Return(ports.DeliveryTransientFailure)

	svc := newTestWatcher(gate, notifier, spreadSources(), "BTC/USDT")
	defer svc.Stop()

	svc.Activate(testUser, tickInterval)

	// the job survives and retries naturally on the following ticks
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sends) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, svc.HasJob(testUser))
}

func TestSymbolDeliveriesAreIndependent(t *testing.T) {
	gate := alwaysActiveGate()

	symbolsSeen := &sync.Map{}
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, testUser, mock.Anything).
		Run(func(args mock.Arguments) {
			alert := args.Get(2).(ports.Alert)
			symbolsSeen.Store(alert.Symbol, struct{}{})
		}).
		Return(ports.DeliveryTransientFailure)

	svc := newTestWatcher(
		gate, notifier, spreadSources(), "BTC/USDT", "ETH/USDT",
	)
	defer svc.Stop()

	svc.Activate(testUser, tickInterval)

	// a failed delivery for one symbol must not suppress the next symbol
	require.Eventually(t, func() bool {
		_, btc := symbolsSeen.Load("BTC/USDT")
		_, eth := symbolsSeen.Load("ETH/USDT")
		return btc && eth
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStopCancelsAllJobs(t *testing.T) {
	gate := alwaysActiveGate()
	svc := newTestWatcher(gate, &mockNotifier{}, flatSources(), "BTC/USDT")

	users := []int64{100001, 100002, 100003}
	for _, u := range users {
		svc.Activate(u, time.Second)
	}

	svc.Stop()
	for _, u := range users {
		require.False(t, svc.HasJob(u))
	}
}

func newTestWatcher(
	gate ports.EntitlementGate, notifier ports.Notifier,
	sources []ports.PriceSource, symbols ...domain.Symbol,
) *watcher.Service {
	marketSvc := market.NewService(sources, symbols, time.Second, 1000)

	return watcher.NewService(watcher.Opts{
		MarketSvc:      marketSvc,
		Gate:           gate,
		Notifier:       notifier,
		Threshold:      threshold,
		FirstTickDelay: firstTickDelay,
	})
}

func alwaysActiveGate() *mockGate {
	gate := &mockGate{}
	gate.On("IsActive", mock.Anything, mock.Anything).Return(true)
	return gate
}

func countingGate(ticks *int32, active bool) *mockGate {
	gate := &mockGate{}
	gate.On("IsActive", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { atomic.AddInt32(ticks, 1) }).
		Return(active)
	return gate
}

// spreadSources quotes a 1.60% spread, above the 1.5% threshold.
func spreadSources() []ports.PriceSource {
	binance := newMockSource("binance")
	binance.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("100.00"), nil)
	bybit := newMockSource("bybit")
	bybit.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("101.60"), nil)
	kucoin := newMockSource("kucoin")
	kucoin.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("100.50"), nil)

	return []ports.PriceSource{binance, bybit, kucoin}
}

// flatSources quotes identical prices everywhere, so no alert ever fires.
func flatSources() []ports.PriceSource {
	binance := newMockSource("binance")
	binance.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("100.00"), nil)
	bybit := newMockSource("bybit")
	bybit.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("100.00"), nil)

	return []ports.PriceSource{binance, bybit}
}
