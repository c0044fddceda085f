package bybitsource

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

// APIURL is the base url of the bybit v5 REST API.
const APIURL = "https://api.bybit.com"

type service struct {
	apiURL     string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewService returns a bybit price source polling the spot tickers endpoint
// with the given request timeout.
func NewService(apiURL string, timeout time.Duration) ports.PriceSource {
	return &service{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker("bybit"),
	}
}

func (s *service) Name() string {
	return "bybit"
}

func (s *service) FetchPrice(
	ctx context.Context, symbol string,
) (decimal.Decimal, error) {
	url := fmt.Sprintf(
		"%s/v5/market/tickers?category=spot&symbol=%s",
		s.apiURL, toBybitSymbol(symbol),
	)

	body, err := fetch(ctx, s.cb, s.httpClient, url)
	if err != nil {
		return decimal.Decimal{}, err
	}

	var ticker struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(body), &ticker); err != nil {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: %s", ports.ErrSourceUnreachable, err,
		)
	}

	// bybit answers 200 with a non-zero retCode for unknown symbols
	if ticker.RetCode != 0 || len(ticker.Result.List) == 0 {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: %s", ports.ErrSymbolNotSupported, ticker.RetMsg,
		)
	}

	price, err := decimal.NewFromString(ticker.Result.List[0].LastPrice)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: invalid price %q",
			ports.ErrSourceUnreachable, ticker.Result.List[0].LastPrice,
		)
	}

	return price, nil
}

// toBybitSymbol maps "BTC/USDT" to bybit's "BTCUSDT" format.
func toBybitSymbol(symbol string) string {
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
	if errors.Is(err, ports.ErrSourceUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %s", ports.ErrSourceUnreachable, err)
}
