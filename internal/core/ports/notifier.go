package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// DeliveryOutcome classifies the result of one alert delivery attempt.
type DeliveryOutcome int

const (
	// DeliverySuccess means the alert reached the user.
	DeliverySuccess DeliveryOutcome = iota
	// DeliveryTransientFailure means delivery failed but may succeed on a
	// later attempt, eg. rate limiting or a transport hiccup.
	DeliveryTransientFailure
	// DeliveryPermanentFailure means the user is unreachable for good, eg.
	// the bot was blocked. The caller must stop alerting that user.
	DeliveryPermanentFailure
)

func (o DeliveryOutcome) String() string {
	switch o {
	case DeliverySuccess:
		return "success"
	case DeliveryTransientFailure:
		return "transient_failure"
	case DeliveryPermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Alert is the payload of a threshold-exceeding spread notification.
// Formatting (price precision, links) is owned by the Notifier
// implementation.
type Alert struct {
	// ID identifies the alert in logs.
	ID string
	// Symbol of the traded pair.
	Symbol string
	// CheapExchange is where the pair trades lowest.
	CheapExchange string
	CheapPrice    decimal.Decimal
	// ExpensiveExchange is where the pair trades highest.
	ExpensiveExchange string
	ExpensivePrice    decimal.Decimal
	// SpreadPercent is the unrounded cross-exchange spread.
	SpreadPercent decimal.Decimal
}

// Notifier delivers a formatted message to a user. Delivery is best-effort:
// implementations classify failures instead of retrying.
type Notifier interface {
	Send(ctx context.Context, userID int64, alert Alert) DeliveryOutcome
}
