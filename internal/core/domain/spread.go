package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Symbol identifies a tradable pair, eg. "BTC/USDT". The set of tracked
// symbols is fixed configuration, never user-controlled.
type Symbol = string

// PriceQuote is a single exchange's most recent traded price for a symbol.
// Quotes are ephemeral, recomputed on every tick and never persisted.
type PriceQuote struct {
	// Exchange is the name of the source exchange.
	Exchange string
	// Symbol of the traded pair.
	Symbol Symbol
	// LastPrice is the last traded price, strictly positive.
	LastPrice decimal.Decimal
	// FetchedAt is the local time the quote was fetched.
	FetchedAt time.Time
}

// NewPriceQuote returns a validated quote.
func NewPriceQuote(exchange string, symbol Symbol, lastPrice decimal.Decimal) (*PriceQuote, error) {
	if len(symbol) == 0 {
		return nil, ErrInvalidSymbol
	}
	if lastPrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPrice
	}

	return &PriceQuote{
		Exchange:  exchange,
		Symbol:    symbol,
		LastPrice: lastPrice,
		FetchedAt: time.Now(),
	}, nil
}

// SpreadResult is the cross-exchange spread for a symbol at a given moment,
// immutable once computed.
type SpreadResult struct {
	Symbol        Symbol
	MinExchange   string
	MinPrice      decimal.Decimal
	MaxExchange   string
	MaxPrice      decimal.Decimal
	SpreadPercent decimal.Decimal
}

// ComputeSpread derives the spread between the cheapest and most expensive
// quote of the given slice. It returns nil if fewer than 2 quotes are
// available. On equal prices the first encountered quote wins, so the result
// is stable over the slice order.
func ComputeSpread(symbol Symbol, quotes []PriceQuote) *SpreadResult {
	if len(quotes) < 2 {
		return nil
	}

	min, max := quotes[0], quotes[0]
	for _, q := range quotes[1:] {
		if q.LastPrice.LessThan(min.LastPrice) {
			min = q
		}
		if q.LastPrice.GreaterThan(max.LastPrice) {
			max = q
		}
	}

	spread := max.LastPrice.Sub(min.LastPrice).
		Div(min.LastPrice).
		Mul(decimal.NewFromInt(100))

	return &SpreadResult{
		Symbol:        symbol,
		MinExchange:   min.Exchange,
		MinPrice:      min.LastPrice,
		MaxExchange:   max.Exchange,
		MaxPrice:      max.LastPrice,
		SpreadPercent: spread,
	}
}

// ExceedsThreshold reports whether the unrounded spread is strictly greater
// than the given threshold expressed in percent.
func (s *SpreadResult) ExceedsThreshold(threshold decimal.Decimal) bool {
	return s.SpreadPercent.GreaterThan(threshold)
}
