package krakensource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/arbhunter/arbd/internal/core/ports"
)

func TestParseTicker(t *testing.T) {
	svc := newOfflineService([]string{"BTC/USDT", "ETH/USDT"})

	tests := []struct {
		name      string
		msg       string
		symbol    string
		price     string
		parseable bool
	}{
		{
			name: "ticker update",
			msg: `[340,{"a":["68000.10000",0,"0.5"],"b":["67999.90000",1,"1.0"],` +
				`"c":["68000.00000","0.001"]},"ticker","XBT/USDT"]`,
			symbol:    "BTC/USDT",
			price:     "68000",
			parseable: true,
		},
		{
			name:      "eth ticker keeps its own notation",
			msg:       `[341,{"c":["3500.50000","0.2"]},"ticker","ETH/USDT"]`,
			symbol:    "ETH/USDT",
			price:     "3500.5",
			parseable: true,
		},
		{
			name:      "heartbeat event",
			msg:       `{"event":"heartbeat"}`,
			parseable: false,
		},
		{
			name:      "subscription status event",
			msg:       `{"event":"subscriptionStatus","status":"subscribed"}`,
			parseable: false,
		},
		{
			name:      "unknown pair",
			msg:       `[342,{"c":["1.00000","0.1"]},"ticker","DOGE/USDT"]`,
			parseable: false,
		},
		{
			name:      "non positive price",
			msg:       `[340,{"c":["0","0.1"]},"ticker","XBT/USDT"]`,
			parseable: false,
		},
		{
			name:      "malformed payload",
			msg:       `[340,"nope","ticker","XBT/USDT"]`,
			parseable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			symbol, price, ok := svc.parseTicker([]byte(tt.msg))
			require.Equal(t, tt.parseable, ok)
			if tt.parseable {
				require.Equal(t, tt.symbol, symbol)
				require.True(t, price.Equal(decimal.RequireFromString(tt.price)))
			}
		})
	}
}

func TestFetchPrice(t *testing.T) {
	ctx := context.Background()
	svc := newOfflineService([]string{"BTC/USDT"})

	_, err := svc.FetchPrice(ctx, "BTC/USDT")
	require.True(t, errors.Is(err, ports.ErrSourceUnreachable))

	svc.writePrice("BTC/USDT", decimal.RequireFromString("68000"))

	price, err := svc.FetchPrice(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("68000")))
}

func TestFetchPriceStaleCache(t *testing.T) {
	svc := newOfflineService([]string{"BTC/USDT"})
	svc.priceBySymbol["BTC/USDT"] = cachedPrice{
		price:     decimal.RequireFromString("68000"),
		updatedAt: time.Now().Add(-2 * staleAfter),
	}

	_, err := svc.FetchPrice(context.Background(), "BTC/USDT")
	require.True(t, errors.Is(err, ports.ErrSourceUnreachable))
}

func TestReadLoopSignalsReconnectOnDeadConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)

			closeMsg := websocket.FormatCloseMessage(
				websocket.CloseGoingAway, "going away",
			)
			require.NoError(t, conn.WriteControl(
				websocket.CloseMessage, closeMsg, time.Now().Add(time.Second),
			))
		},
	))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	svc := newOfflineService([]string{"BTC/USDT"})
	svc.conn = conn

	type readResult struct {
		mustReconnect bool
		err           error
	}
	resChan := make(chan readResult, 1)
	go func() {
		mustReconnect, err := svc.start()
		resChan <- readResult{mustReconnect, err}
	}()

	select {
	case res := <-resChan:
		require.True(t, res.mustReconnect)
		require.Error(t, res.err)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop kept spinning on a dead connection")
	}
}

func TestToKrakenTicker(t *testing.T) {
	require.Equal(t, "XBT/USDT", toKrakenTicker("BTC/USDT"))
	require.Equal(t, "ETH/USDT", toKrakenTicker("ETH/USDT"))
}

func newOfflineService(symbols []string) *Service {
	symbolByTicker := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		symbolByTicker[toKrakenTicker(symbol)] = symbol
	}

	return &Service{
		symbolByTicker: symbolByTicker,
		pricesMtx:      &sync.RWMutex{},
		priceBySymbol:  make(map[string]cachedPrice),
		quitChan:       make(chan struct{}, 1),
	}
}
