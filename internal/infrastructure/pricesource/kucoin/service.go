package kucoinsource

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

// APIURL is the base url of the kucoin REST API.
const APIURL = "https://api.kucoin.com"

type service struct {
	apiURL     string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewService returns a kucoin price source polling the level1 orderbook
// endpoint with the given request timeout.
func NewService(apiURL string, timeout time.Duration) ports.PriceSource {
	return &service{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker("kucoin"),
	}
}

func (s *service) Name() string {
	return "kucoin"
}

func (s *service) FetchPrice(
	ctx context.Context, symbol string,
) (decimal.Decimal, error) {
	url := fmt.Sprintf(
		"%s/api/v1/market/orderbook/level1?symbol=%s",
		s.apiURL, toKucoinSymbol(symbol),
	)

	body, err := fetch(ctx, s.cb, s.httpClient, url)
	if err != nil {
		return decimal.Decimal{}, err
	}

	var ticker struct {
		Code string `json:"code"`
		Data *struct {
			Price string `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &ticker); err != nil {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: %s", ports.ErrSourceUnreachable, err,
		)
	}

	// kucoin answers 200 with a null data field for unknown symbols
	if ticker.Code != "200000" || ticker.Data == nil {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: code %s", ports.ErrSymbolNotSupported, ticker.Code,
		)
	}

	price, err := decimal.NewFromString(ticker.Data.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: invalid price %q", ports.ErrSourceUnreachable, ticker.Data.Price,
		)
	}

	return price, nil
}

// toKucoinSymbol maps "BTC/USDT" to kucoin's "BTC-USDT" format.
func toKucoinSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
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
