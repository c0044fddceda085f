package krakensource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/arbhunter/arbd/internal/core/ports"
)

const (
	// KrakenWebSocketURL is the base url to open a connection with kraken.
	// This can be tweaked if in the future it might change, even if unlikely.
	KrakenWebSocketURL = "ws.kraken.com"

	// staleAfter is how long a cached price stays servable without a fresh
	// tick from the stream.
	staleAfter = time.Minute
)

type cachedPrice struct {
	price     decimal.Decimal
	updatedAt time.Time
}

// Service keeps a websocket ticker subscription open with kraken and serves
// FetchPrice from the latest streamed prices. Unlike the REST sources a
// fetch never hits the network: a missing or stale cache entry is reported
// as the source being unreachable.
type Service struct {
	conn *websocket.Conn

	symbolByTicker map[string]string

	pricesMtx     *sync.RWMutex
	priceBySymbol map[string]cachedPrice

	quitChan chan struct{}
}

// NewService connects to the kraken websocket API and subscribes to the
// ticker stream of the given symbols. Start must be called to begin caching
// prices.
func NewService(symbols []string) (*Service, error) {
	conn, err := connect()
	if err != nil {
		return nil, err
	}

	symbolByTicker := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		symbolByTicker[toKrakenTicker(symbol)] = symbol
	}

	svc := &Service{
		conn:           conn,
		symbolByTicker: symbolByTicker,
		pricesMtx:      &sync.RWMutex{},
		priceBySymbol:  make(map[string]cachedPrice),
		quitChan:       make(chan struct{}, 1),
	}

	if err := svc.subscribe(svc.tickers()); err != nil {
		return nil, err
	}

	return svc, nil
}

func (s *Service) Name() string {
	return "kraken"
}

func (s *Service) FetchPrice(
	_ context.Context, symbol string,
) (decimal.Decimal, error) {
	s.pricesMtx.RLock()
	defer s.pricesMtx.RUnlock()

	cached, ok := s.priceBySymbol[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: no price streamed yet for %s", ports.ErrSourceUnreachable, symbol,
		)
	}
	if time.Since(cached.updatedAt) > staleAfter {
		return decimal.Decimal{}, fmt.Errorf(
			"%w: stale price for %s", ports.ErrSourceUnreachable, symbol,
		)
	}

	return cached.price, nil
}

// Start runs the read loop, reconnecting when the connection drops
// unexpectedly. It blocks until Stop is called and is meant to be run in a
// dedicated goroutine.
func (s *Service) Start() error {
	mustReconnect, err := s.start()
	for mustReconnect {
		log.WithError(err).Warn("kraken connection dropped unexpectedly. Trying to reconnect...")

		conn, connErr := connect()
		if connErr != nil {
			return connErr
		}
		s.conn = conn

		if err := s.subscribe(s.tickers()); err != nil {
			return err
		}

		log.Debug("kraken connection and subscriptions re-established. Restarting...")
		mustReconnect, err = s.start()
	}

	return err
}

func (s *Service) Stop() {
	s.quitChan <- struct{}{}
}

func (s *Service) start() (mustReconnect bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			mustReconnect = true
		}
	}()

	var readErrs int
	for {
		select {
		case <-s.quitChan:
			err = s.conn.Close()
			return false, err
		default:
			// a dropped connection can make the read below panic instead of
			// returning an UnexpectedCloseError. The deferred recover covers
			// both ways of signaling that a reconnection is needed.
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(
					err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				) {
					panic(err)
				}
				// a failed connection keeps returning the same error on every
				// read. One error can be a lone bad frame, a second one in a
				// row means the connection is gone.
				readErrs++
				if readErrs > 1 {
					return true, err
				}
				continue
			}
			readErrs = 0

			symbol, price, ok := s.parseTicker(message)
			if !ok {
				continue
			}

			s.writePrice(symbol, price)
		}
	}
}

func (s *Service) parseTicker(msg []byte) (string, decimal.Decimal, bool) {
	var i []interface{}
	if err := json.Unmarshal(msg, &i); err != nil {
		return "", decimal.Decimal{}, false
	}
	if len(i) != 4 {
		return "", decimal.Decimal{}, false
	}

	ticker, ok := i[3].(string)
	if !ok {
		return "", decimal.Decimal{}, false
	}

	symbol, ok := s.symbolByTicker[ticker]
	if !ok {
		return "", decimal.Decimal{}, false
	}

	ii, ok := i[1].(map[string]interface{})
	if !ok {
		return "", decimal.Decimal{}, false
	}

	iii, ok := ii["c"].([]interface{})
	if !ok || len(iii) < 1 {
		return "", decimal.Decimal{}, false
	}

	priceStr, ok := iii[0].(string)
	if !ok {
		return "", decimal.Decimal{}, false
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		return "", decimal.Decimal{}, false
	}

	return symbol, price, true
}

func (s *Service) subscribe(tickers []string) error {
	msg := map[string]interface{}{
		"event": "subscribe",
		"pair":  tickers,
		"subscription": map[string]string{
			"name": "ticker",
		},
	}

	buf, _ := json.Marshal(msg)
	if err := s.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		return fmt.Errorf("cannot subscribe to given tickers: %s", err)
	}

	return nil
}

func (s *Service) tickers() []string {
	tickers := make([]string, 0, len(s.symbolByTicker))
	for ticker := range s.symbolByTicker {
		tickers = append(tickers, ticker)
	}
	return tickers
}

func (s *Service) writePrice(symbol string, price decimal.Decimal) {
	s.pricesMtx.Lock()
	defer s.pricesMtx.Unlock()

	s.priceBySymbol[symbol] = cachedPrice{price, time.Now()}
}

// toKrakenTicker maps "BTC/USDT" to kraken's "XBT/USDT" notation.
func toKrakenTicker(symbol string) string {
	return strings.ReplaceAll(symbol, "BTC", "XBT")
}

func connect() (*websocket.Conn, error) {
	url := fmt.Sprintf("wss://%s", KrakenWebSocketURL)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}
