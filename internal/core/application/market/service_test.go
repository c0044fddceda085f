package market_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arbhunter/arbd/internal/core/application/market"
	"github.com/arbhunter/arbd/internal/core/domain"
	"github.com/arbhunter/arbd/internal/core/ports"
)

var ctx = context.Background()

func TestFetchQuotes(t *testing.T) {
	t.Parallel()

	binance := newMockSource("binance")
	binance.On("FetchPrice", mock.Anything, "BTC/USDT").
		Return(decimal.RequireFromString("100.00"), nil)
	bybit := newMockSource("bybit")
	bybit.On("FetchPrice", mock.Anything, "BTC/USDT").
		Return(decimal.RequireFromString("101.60"), nil)
	kucoin := newMockSource("kucoin")
	kucoin.On("FetchPrice", mock.Anything, "BTC/USDT").
		Return(decimal.RequireFromString("100.50"), nil)

	svc := newTestService(binance, bybit, kucoin)

	quotes := svc.FetchQuotes(ctx, "BTC/USDT")
	require.Len(t, quotes, 3)

	// quotes keep the registry order of the sources
	require.Equal(t, "binance", quotes[0].Exchange)
	require.Equal(t, "bybit", quotes[1].Exchange)
	require.Equal(t, "kucoin", quotes[2].Exchange)
}

func TestFetchQuotesPartialFailure(t *testing.T) {
	t.Parallel()

	binance := newMockSource("binance")
	binance.On("FetchPrice", mock.Anything, "BTC/USDT").
		Return(decimal.RequireFromString("100.00"), nil)
	bybit := newMockSource("bybit")
	bybit.On("FetchPrice", mock.Anything, "BTC/USDT").
		Return(decimal.Decimal{}, ports.ErrSourceUnreachable)
	kucoin := newMockSource("kucoin")
	kucoin.On("FetchPrice", mock.Anything, "BTC/USDT").
		Return(decimal.Decimal{}, ports.ErrSourceUnreachable)

	svc := newTestService(binance, bybit, kucoin)

	quotes := svc.FetchQuotes(ctx, "BTC/USDT")
	require.Len(t, quotes, 1)
	require.Equal(t, "binance", quotes[0].Exchange)

	// a single quote is not enough to derive a spread, and that is fine
	require.Nil(t, domain.ComputeSpread("BTC/USDT", quotes))
}

func TestFetchQuotesSymbolNotSupported(t *testing.T) {
	t.Parallel()

	binance := newMockSource("binance")
	binance.On("FetchPrice", mock.Anything, "ETH/USDT").
		Return(decimal.Decimal{}, ports.ErrSymbolNotSupported)
	bybit := newMockSource("bybit")
	bybit.On("FetchPrice", mock.Anything, "ETH/USDT").
		Return(decimal.RequireFromString("1850.00"), nil)

	svc := newTestService(binance, bybit)

	quotes := svc.FetchQuotes(ctx, "ETH/USDT")
	require.Len(t, quotes, 1)
	require.Equal(t, "bybit", quotes[0].Exchange)
}

func TestFetchAllQuotes(t *testing.T) {
	t.Parallel()

	binance := newMockSource("binance")
	binance.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("100.00"), nil)
	bybit := newMockSource("bybit")
	bybit.On("FetchPrice", mock.Anything, mock.Anything).
		Return(decimal.RequireFromString("101.00"), nil)

	svc := newTestService(binance, bybit)

	quotesBySymbol := svc.FetchAllQuotes(ctx)
	require.Len(t, quotesBySymbol, 2)
	require.Len(t, quotesBySymbol["BTC/USDT"], 2)
	require.Len(t, quotesBySymbol["ETH/USDT"], 2)
}

func newTestService(sources ...ports.PriceSource) *market.Service {
	return market.NewService(
		sources,
		[]domain.Symbol{"BTC/USDT", "ETH/USDT"},
		time.Second,
		100,
	)
}

type mockSource struct {
	mock.Mock
	name string
}

func newMockSource(name string) *mockSource {
	return &mockSource{name: name}
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) FetchPrice(
	ctx context.Context, symbol string,
) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}
