package binancesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/arbhunter/arbd/internal/core/ports"
	"github.com/arbhunter/arbd/pkg/circuitbreaker"
	"github.com/arbhunter/arbd/pkg/util"
)

// APIURL is the base url of the binance spot REST API. This can be tweaked
// if in the future it might change, even if unlikely.
const APIURL = "https://api.binance.com"

type service struct {
	apiURL     string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewService returns a binance price source polling the ticker price
// endpoint with the given request timeout.
func NewService(apiURL string, timeout time.Duration) ports.PriceSource {
	return &service{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker("binance"),
	}
}

func (s *service) Name() string {
	return "binance"
}

func (s *service) FetchPrice(
	ctx context.Context, symbol string,
) (decimal.Decimal, error) {
	url := fmt.Sprintf(
		"%s/api/v3/ticker/price?symbol=%s", s.apiURL, toBinanceSymbol(symbol),
	)

	body, err := fetch(ctx, s.cb, s.httpClient, url)
	if err != nil {
		return decimal.Decimal{}, err
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal([]byte(body), &ticker); err != nil {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: %s", ports.ErrSourceUnreachable, err,
		)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: invalid price %q", ports.ErrSourceUnreachable, ticker.Price,
		)
	}

	return price, nil
}

// toBinanceSymbol maps "BTC/USDT" to binance's "BTCUSDT" format.
func toBinanceSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

func fetch(
	ctx context.Context, cb *gobreaker.CircuitBreaker,
	httpClient *http.Client, url string,
) (string, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		status, body, err := util.HTTPGet(ctx, httpClient, url, nil)
		if err != nil {
			return nil, err
		}

		// an unknown symbol answers 400, anything else non-OK means the
		// exchange is in trouble
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			return nil, fmt.Errorf(
				"%w: status %d", ports.ErrSymbolNotSupported, status,
			)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf(
				"%w: status %d", ports.ErrSourceUnreachable, status,
			)
		}

		return body, nil
	})
	if err != nil {
		return "", asSourceError(err)
	}

	return res.(string), nil
}

func asSourceError(err error) error {
	if errors.Is(err, ports.ErrSymbolNotSupported) ||
		errors.Is(err, ports.ErrSourceUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %s", ports.ErrSourceUnreachable, err)
}
