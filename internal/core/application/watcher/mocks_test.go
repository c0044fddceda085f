package watcher_test

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/arbhunter/arbd/internal/core/ports"
)

/*
 * PriceSource
 */
type mockSource struct {
	mock.Mock
	name string
}

func newMockSource(name string) *mockSource {
	return &mockSource{name: name}
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) FetchPrice(
	ctx context.Context, symbol string,
) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

/*
 * EntitlementGate
 */
type mockGate struct {
	mock.Mock
}

func (m *mockGate) IsActive(ctx context.Context, userID int64) bool {
	args := m.Called(ctx, userID)
	return args.Bool(0)
}

/*
 * Notifier
 */
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(
	ctx context.Context, userID int64, alert ports.Alert,
) ports.DeliveryOutcome {
	args := m.Called(ctx, userID, alert)
	return args.Get(0).(ports.DeliveryOutcome)
}
