package market

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"

	"github.com/arbhunter/arbd/internal/core/domain"
	"github.com/arbhunter/arbd/internal/core/ports"
	"github.com/arbhunter/arbd/pkg/stats"
)

// Service aggregates last-trade prices over a fixed, ordered registry of
// price sources. Fetches for one symbol fan out concurrently, one goroutine
// per source, and are joined before returning so that callers always observe
// a complete (possibly partial) result set.
type Service struct {
	sources []ports.PriceSource
	symbols []domain.Symbol
	timeout time.Duration

	limiterBySource map[string]ratelimit.Limiter
}

// NewService returns a market service polling the given sources for the
// given symbols. Every source call is bounded by the timeout and throttled
// to requestsPerSecond.
func NewService(
	sources []ports.PriceSource, symbols []domain.Symbol,
	timeout time.Duration, requestsPerSecond int,
) *Service {
	limiterBySource := make(map[string]ratelimit.Limiter, len(sources))
	for _, src := range sources {
		limiterBySource[src.Name()] = ratelimit.New(requestsPerSecond)
	}

	return &Service{
		sources:         sources,
		symbols:         symbols,
		timeout:         timeout,
		limiterBySource: limiterBySource,
	}
}

// Symbols returns the tracked trading pairs.
func (s *Service) Symbols() []domain.Symbol {
	return s.symbols
}

// FetchQuotes returns the successful quotes for the given symbol, in the
// registry order of the sources. Source failures are logged, counted and
// dropped, never propagated: a partial or even empty result is a valid one.
func (s *Service) FetchQuotes(ctx context.Context, symbol domain.Symbol) []domain.PriceQuote {
	quotesBySlot := make([]*domain.PriceQuote, len(s.sources))

	g := &errgroup.Group{}
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			quote, err := s.fetchQuote(ctx, src, symbol)
			if err != nil {
				logSourceFailure(src.Name(), symbol, err)
				stats.SourceFetchErrors.WithLabelValues(src.Name()).Inc()
				return nil
			}
			quotesBySlot[i] = quote
			return nil
		})
	}
	// workers never return errors, the group is only used as a join point
	g.Wait()

	quotes := make([]domain.PriceQuote, 0, len(quotesBySlot))
	for _, q := range quotesBySlot {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	return quotes
}

// FetchAllQuotes returns the quotes of every tracked symbol keyed by symbol,
// used by the one-off price listing command.
func (s *Service) FetchAllQuotes(ctx context.Context) map[domain.Symbol][]domain.PriceQuote {
	quotesBySymbol := make(map[domain.Symbol][]domain.PriceQuote, len(s.symbols))
	for _, symbol := range s.symbols {
		quotesBySymbol[symbol] = s.FetchQuotes(ctx, symbol)
	}
	return quotesBySymbol
}

func (s *Service) fetchQuote(
	ctx context.Context, src ports.PriceSource, symbol domain.Symbol,
) (*domain.PriceQuote, error) {
	s.limiterBySource[src.Name()].Take()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	price, err := src.FetchPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	return domain.NewPriceQuote(src.Name(), symbol, price)
}

func logSourceFailure(source string, symbol domain.Symbol, err error) {
	entry := log.WithField("source", source).WithField("symbol", symbol)
	switch {
	case errors.Is(err, ports.ErrSymbolNotSupported):
		entry.Debug("symbol not supported, skipping quote")
	case errors.Is(err, ports.ErrSourceUnreachable):
		entry.WithError(err).Warn("source unreachable, skipping quote")
	default:
		entry.WithError(err).Warn("fetching quote failed, skipping")
	}
}
