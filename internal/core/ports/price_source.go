package ports

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrSourceUnreachable is returned when an exchange cannot be reached
	// or does not answer within the configured timeout.
	ErrSourceUnreachable = errors.New("price source unreachable")
	// ErrSymbolNotSupported is returned when an exchange does not list the
	// requested trading pair.
	ErrSymbolNotSupported = errors.New("symbol not supported by price source")
)

// PriceSource wraps one exchange's ticker-fetch capability. Each call is
// independent: a failing source must never block or fail another source's
// fetch for the same symbol. Both error kinds above are recoverable and
// downgraded to "no quote from this source" by callers.
type PriceSource interface {
	// Name returns the exchange name, eg. "binance".
	Name() string
	// FetchPrice returns the last traded price for the given symbol.
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
