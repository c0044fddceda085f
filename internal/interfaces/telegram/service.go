package telegrambot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/arbhunter/arbd/internal/core/application/market"
	"github.com/arbhunter/arbd/internal/core/application/watcher"
	"github.com/arbhunter/arbd/internal/core/domain"
)

// PollTimeout is the long-polling window of the updates channel. The bot's
// HTTP client timeout must be larger than this, or every idle poll gets cut
// short.
const PollTimeout = 30 * time.Second

// Bot is the slice of the Telegram bot API the command surface needs,
// satisfied by *tgbotapi.BotAPI.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Service reads user commands from the Telegram long-polling channel and
// maps them onto the market and watcher services. Commands with no live job
// attached (/start, /prices, /subscribe) bypass the scheduler entirely.
type Service struct {
	bot        Bot
	repo       domain.UserRepository
	marketSvc  *market.Service
	watcherSvc *watcher.Service

	alertInterval time.Duration
	quitChan      chan struct{}
}

// NewService returns a stopped command service. Start begins consuming
// updates.
func NewService(
	bot Bot, repo domain.UserRepository,
	marketSvc *market.Service, watcherSvc *watcher.Service,
	alertInterval time.Duration,
) *Service {
	return &Service{
		bot:           bot,
		repo:          repo,
		marketSvc:     marketSvc,
		watcherSvc:    watcherSvc,
		alertInterval: alertInterval,
		quitChan:      make(chan struct{}, 1),
	}
}

// Start consumes command updates until Stop is called.
func (s *Service) Start() {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = int(PollTimeout.Seconds())

	updates := s.bot.GetUpdatesChan(updateConfig)

	go func() {
		for {
			select {
			case <-s.quitChan:
				return
			case update, more := <-updates:
				if !more {
					return
				}
				if update.Message == nil || !update.Message.IsCommand() {
					continue
				}
				s.handleCommand(update.Message)
			}
		}
	}()

	log.Info("telegram command surface started")
}

// Stop stops consuming updates.
func (s *Service) Stop() {
	s.bot.StopReceivingUpdates()
	s.quitChan <- struct{}{}
}

func (s *Service) handleCommand(msg *tgbotapi.Message) {
	ctx := context.Background()
	userID := msg.From.ID

	var reply string
	switch msg.Command() {
	case "start":
		reply = s.handleStart(ctx, msg)
	case "prices":
		reply = s.handlePrices(ctx)
	case "subscribe":
		reply = subscribeText
	case "premium":
		reply = s.handlePremium(ctx, msg)
	case "stop":
		s.watcherSvc.Cancel(userID)
		reply = "🛑 Alerts stopped."
	default:
		return
	}

	s.reply(userID, reply)
}

func (s *Service) handleStart(ctx context.Context, msg *tgbotapi.Message) string {
	if _, err := s.repo.GetOrCreateUser(
		ctx, msg.From.ID, msg.From.UserName,
	); err != nil {
		log.WithError(err).WithField("user", msg.From.ID).
			Error("cannot register user")
		return "Something went wrong, try again."
	}

	return fmt.Sprintf(
		"👋 Hi, %s!\n\n"+
			"I'm *ArbHunterBot*. I watch crypto prices across exchanges and "+
			"send arbitrage signals.\n\n"+
			"🔹 /prices — current prices\n"+
			"🔸 /subscribe — how to go Premium\n"+
			"💎 /premium — activate Premium",
		msg.From.FirstName,
	)
}

func (s *Service) handlePrices(ctx context.Context) string {
	quotesBySymbol := s.marketSvc.FetchAllQuotes(ctx)

	sb := &strings.Builder{}
	sb.WriteString("📊 Current prices:\n\n")
	for _, symbol := range s.marketSvc.Symbols() {
		fmt.Fprintf(sb, "*%s*\n", symbol)
		quotes := quotesBySymbol[symbol]
		if len(quotes) == 0 {
			sb.WriteString("  no prices available right now\n")
		}
		for _, q := range quotes {
			fmt.Fprintf(sb, "  %s: $%s\n", q.Exchange, q.LastPrice.StringFixed(2))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func (s *Service) handlePremium(ctx context.Context, msg *tgbotapi.Message) string {
	userID := msg.From.ID

	if _, err := s.repo.GetOrCreateUser(ctx, userID, msg.From.UserName); err != nil {
		log.WithError(err).WithField("user", userID).
			Error("cannot register user")
		return "Could not activate alerts, try again."
	}

	if err := s.repo.UpdateUser(
		ctx, userID, func(u *domain.User) (*domain.User, error) {
			u.SetPremium()
			return u, nil
		},
	); err != nil {
		log.WithError(err).WithField("user", userID).
			Error("cannot set premium entitlement")
		return "Could not activate alerts, try again."
	}

	s.watcherSvc.Activate(userID, s.alertInterval)

	return fmt.Sprintf(
		"🎉 Congrats! You are a *Premium user*!\n"+
			"You will now receive alerts every %d seconds.\n\n"+
			"To turn them off, send /stop",
		int(s.alertInterval.Seconds()),
	)
}

func (s *Service) reply(userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := s.bot.Send(msg); err != nil {
		log.WithError(err).WithField("user", userID).Warn("cannot send reply")
	}
}

const subscribeText = "💎 *Premium subscription* — $9.99/mo\n\n" +
	"✅ Alerts every 15 seconds\n" +
	"✅ All coins and exchanges\n" +
	"✅ Priority processing\n\n" +
	"👉 Activation is *free* for now via /premium"
