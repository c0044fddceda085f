package telegramnotifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/arbhunter/arbd/internal/core/ports"
)

// Sender is the slice of the Telegram bot API needed to deliver alerts,
// satisfied by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// wwwByExchange maps a source name to the exchange homepage linked in the
// alert message.
var wwwByExchange = map[string]string{
	"binance": "https://www.binance.com",
	"bybit":   "https://www.bybit.com",
	"kucoin":  "https://www.kucoin.com",
	"kraken":  "https://www.kraken.com",
}

type service struct {
	bot         Sender
	sendTimeout time.Duration
}

// NewService returns a Notifier delivering alerts as Telegram messages.
// Every delivery attempt is bounded by sendTimeout.
func NewService(bot Sender, sendTimeout time.Duration) ports.Notifier {
	return &service{bot, sendTimeout}
}

// Send delivers the alert within the configured bound, or the caller's
// deadline if that one expires first. A stalled transport can never hold
// the calling job goroutine: the attempt is abandoned and reported as a
// transient failure.
func (s *service) Send(
	ctx context.Context, userID int64, alert ports.Alert,
) ports.DeliveryOutcome {
	msg := tgbotapi.NewMessage(userID, formatAlert(alert))
	msg.ParseMode = tgbotapi.ModeMarkdown

	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(msg)
		errChan <- err
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errChan:
	}

	if err != nil {
		outcome := classifyError(err)
		log.WithError(err).
			WithField("user", userID).
			WithField("alert", alert.ID).
			Warnf("telegram delivery failed (%s)", outcome)
		return outcome
	}

	return ports.DeliverySuccess
}

// formatAlert renders the alert payload. Prices and spread are rounded to 2
// decimals here only, threshold comparisons upstream always use the
// unrounded values.
func formatAlert(alert ports.Alert) string {
	text := fmt.Sprintf(
		"🚨 *ARBITRAGE* (%s)\n"+
			"📉 %s: $%s\n"+
			"📈 %s: $%s\n"+
			"📊 Spread: *%s%%*",
		alert.Symbol,
		alert.CheapExchange, alert.CheapPrice.StringFixed(2),
		alert.ExpensiveExchange, alert.ExpensivePrice.StringFixed(2),
		alert.SpreadPercent.StringFixed(2),
	)
	if www, ok := wwwByExchange[alert.CheapExchange]; ok {
		text += fmt.Sprintf("\n🔗 [Buy on %s](%s)", alert.CheapExchange, www)
	}

	return text
}

// classifyError maps a Telegram API error to a delivery outcome. A blocked
// bot or a missing chat means the user is gone for good; everything else,
// deadlines, rate limiting and transport errors included, is worth another
// attempt on a later tick.
func classifyError(err error) ports.DeliveryOutcome {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) {
		return ports.DeliveryTransientFailure
	}

	if tgErr.Code == 403 {
		return ports.DeliveryPermanentFailure
	}
	if tgErr.Code == 400 &&
		strings.Contains(strings.ToLower(tgErr.Message), "chat not found") {
		return ports.DeliveryPermanentFailure
	}

	return ports.DeliveryTransientFailure
}
