package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// TelegramTokenKey is the token of the Telegram bot acting as the alert transport
	TelegramTokenKey = "TELEGRAM_TOKEN"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// DatadirKey is the local data directory to store the users db. Empty means in-memory
	DatadirKey = "DATA_DIR_PATH"
	// SpreadThresholdKey is the minimum cross-exchange spread in percent that triggers an alert
	SpreadThresholdKey = "SPREAD_THRESHOLD"
	// SymbolsKey is the comma separated list of tracked trading pairs
	SymbolsKey = "SYMBOLS"
	// AlertIntervalKey is the interval in seconds between two ticks of a user's alert job
	AlertIntervalKey = "ALERT_INTERVAL"
	// FirstTickDelayKey is the delay in seconds before the first tick of a freshly activated job
	FirstTickDelayKey = "FIRST_TICK_DELAY"
	// PriceRequestTimeoutKey are the milliseconds to wait for exchange HTTP responses before timeouts
	PriceRequestTimeoutKey = "PRICE_REQUEST_TIMEOUT"
	// NotifierTimeoutKey are the milliseconds to wait for a telegram delivery before giving up on the attempt
	NotifierTimeoutKey = "NOTIFIER_TIMEOUT"
	// SourceRateLimitKey represents number of requests per second made to each price source
	SourceRateLimitKey = "SOURCE_RATE_LIMIT"
	// StatsIntervalKey defines interval for printing basic arbd statistics
	StatsIntervalKey = "STATS_INTERVAL"
)

var vip *viper.Viper

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("ARB")
	vip.AutomaticEnv()

	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(DatadirKey, "")
	vip.SetDefault(SpreadThresholdKey, 1.5)
	vip.SetDefault(SymbolsKey, "BTC/USDT,ETH/USDT")
	vip.SetDefault(AlertIntervalKey, 15)
	vip.SetDefault(FirstTickDelayKey, 10)
	vip.SetDefault(PriceRequestTimeoutKey, 15000)
	vip.SetDefault(NotifierTimeoutKey, 10000)
	vip.SetDefault(SourceRateLimitKey, 10)
	vip.SetDefault(StatsIntervalKey, 600)
}

// Validate checks the sanity of the loaded configuration. It is meant to be
// invoked once at daemon startup.
func Validate() error {
	threshold := GetFloat(SpreadThresholdKey)
	if threshold <= 0 || threshold >= 100 {
		return fmt.Errorf(
			"invalid %s: %f, must be in range (0, 100)",
			SpreadThresholdKey, threshold,
		)
	}

	if len(GetSymbols()) == 0 {
		return fmt.Errorf("invalid %s: at least one symbol must be tracked", SymbolsKey)
	}

	if GetInt(AlertIntervalKey) <= 0 {
		return fmt.Errorf("invalid %s: must be a positive number of seconds", AlertIntervalKey)
	}

	if GetInt(SourceRateLimitKey) <= 0 {
		return fmt.Errorf(
			"invalid %s: must be a positive number of requests per second",
			SourceRateLimitKey,
		)
	}

	for _, key := range []string{PriceRequestTimeoutKey, NotifierTimeoutKey} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("invalid %s: must be a positive number of milliseconds", key)
		}
	}

	if len(GetString(TelegramTokenKey)) == 0 {
		return fmt.Errorf("%s must be set", TelegramTokenKey)
	}

	return nil
}

//GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

//GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

//GetFloat ...
func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

//GetDuration returns the value of the given key as seconds.
func GetDuration(key string) time.Duration {
	return time.Duration(vip.GetInt(key)) * time.Second
}

// GetSymbols returns the tracked trading pairs parsed from the comma
// separated SYMBOLS value, empty entries skipped.
func GetSymbols() []string {
	raw := strings.Split(vip.GetString(SymbolsKey), ",")
	symbols := make([]string, 0, len(raw))
	for _, s := range raw {
		if trimmed := strings.TrimSpace(s); len(trimmed) > 0 {
			symbols = append(symbols, trimmed)
		}
	}
	return symbols
}

// Set allows to override a config value at runtime, mostly used in tests.
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// GetLogLevel maps the numeric LOG_LEVEL to a logrus level, falling back to
// Info on out of range values.
func GetLogLevel() log.Level {
	level := GetInt(LogLevelKey)
	if level < 0 || level > int(log.TraceLevel) {
		return log.InfoLevel
	}
	return log.Level(level)
}
