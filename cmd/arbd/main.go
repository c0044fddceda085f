package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/arbhunter/arbd/config"
	"github.com/arbhunter/arbd/internal/core/application/entitlement"
	"github.com/arbhunter/arbd/internal/core/application/market"
	"github.com/arbhunter/arbd/internal/core/application/watcher"
	"github.com/arbhunter/arbd/internal/core/ports"
	telegramnotifier "github.com/arbhunter/arbd/internal/infrastructure/notifier/telegram"
	binancesource "github.com/arbhunter/arbd/internal/infrastructure/pricesource/binance"
	bybitsource "github.com/arbhunter/arbd/internal/infrastructure/pricesource/bybit"
	krakensource "github.com/arbhunter/arbd/internal/infrastructure/pricesource/kraken"
	kucoinsource "github.com/arbhunter/arbd/internal/infrastructure/pricesource/kucoin"
	dbbadger "github.com/arbhunter/arbd/internal/infrastructure/storage/db/badger"
	telegrambot "github.com/arbhunter/arbd/internal/interfaces/telegram"
	"github.com/arbhunter/arbd/pkg/stats"
)

func main() {
	log.SetLevel(config.GetLogLevel())
	if err := config.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	symbols := config.GetSymbols()
	requestTimeout := time.Duration(
		config.GetInt(config.PriceRequestTimeoutKey),
	) * time.Millisecond

	repo, err := dbbadger.NewUserRepositoryImpl(
		config.GetString(config.DatadirKey), nil,
	)
	if err != nil {
		log.WithError(err).Fatal("cannot open users db")
	}
	defer repo.Close()

	sources := []ports.PriceSource{
		binancesource.NewService(binancesource.APIURL, requestTimeout),
		bybitsource.NewService(bybitsource.APIURL, requestTimeout),
		kucoinsource.NewService(kucoinsource.APIURL, requestTimeout),
	}
	if kraken, err := krakensource.NewService(symbols); err != nil {
		log.WithError(err).Warn("kraken feed unavailable, starting without it")
	} else {
		go func() {
			if err := kraken.Start(); err != nil {
				log.WithError(err).Warn("kraken feed stopped")
			}
		}()
		defer kraken.Stop()
		sources = append(sources, kraken)
	}

	notifierTimeout := time.Duration(
		config.GetInt(config.NotifierTimeoutKey),
	) * time.Millisecond

	// the client is shared with the updates long poll, so its timeout backstops
	// the poll window on top of the per-delivery bound
	bot, err := tgbotapi.NewBotAPIWithClient(
		config.GetString(config.TelegramTokenKey), tgbotapi.APIEndpoint,
		&http.Client{Timeout: telegrambot.PollTimeout + notifierTimeout},
	)
	if err != nil {
		log.WithError(err).Fatal("cannot reach the telegram API")
	}

	marketSvc := market.NewService(
		sources, symbols, requestTimeout,
		config.GetInt(config.SourceRateLimitKey),
	)
	watcherSvc := watcher.NewService(watcher.Opts{
		MarketSvc:      marketSvc,
		Gate:           entitlement.NewService(repo),
		Notifier:       telegramnotifier.NewService(bot, notifierTimeout),
		Threshold:      decimal.NewFromFloat(config.GetFloat(config.SpreadThresholdKey)),
		FirstTickDelay: config.GetDuration(config.FirstTickDelayKey),
	})
	defer watcherSvc.Stop()

	botSvc := telegrambot.NewService(
		bot, repo, marketSvc, watcherSvc,
		config.GetDuration(config.AlertIntervalKey),
	)
	botSvc.Start()
	defer botSvc.Stop()

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	stats.EnableStatistics(statsCtx, config.GetDuration(config.StatsIntervalKey))

	log.WithFields(log.Fields{
		"bot":     bot.Self.UserName,
		"symbols": symbols,
		"sources": len(sources),
	}).Info("daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")
}
