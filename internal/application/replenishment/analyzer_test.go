package replenishment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/replenishment"
	"github.com/erp/manufacture/internal/domain/shared"
)

const rawAccount = "0190f6a4-5b3b-7c1e-9d2a-3f4e5a6b7c8d"

var (
	testAccount = marketplace.MustAccountID(rawAccount)
	fixedNow    = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
)

type MockDemandReader struct {
	mock.Mock
}

func (m *MockDemandReader) Demand(ctx context.Context, account marketplace.AccountID, since time.Time) ([]replenishment.DemandRow, error) {
	args := m.Called(ctx, account, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]replenishment.DemandRow), args.Error(1)
}

type MockInProgressReader struct {
	mock.Mock
}

func (m *MockInProgressReader) InProgressProducts(ctx context.Context, account marketplace.AccountID, channel manufacture.CompletionChannel) (map[uuid.UUID]bool, error) {
	args := m.Called(ctx, account, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]bool), args.Error(1)
}

func newTestAnalyzer(demand *MockDemandReader, inProgress *MockInProgressReader) *Analyzer {
	a := NewAnalyzer(demand, inProgress, replenishment.DefaultParams(), nil)
	a.now = func() time.Time { return fixedNow }
	return a
}

func TestAnalyzer_RankForAccount(t *testing.T) {
	p, q, r := uuid.New(), uuid.New(), uuid.New()
	rows := []replenishment.DemandRow{
		{Invariable: p, Barcode: "p", OrdersInWindow: 42, Stock: 10},
		{Invariable: q, Barcode: "q", OrdersInWindow: 70, Stock: 2},
		{Invariable: r, Barcode: "r", OrdersInWindow: 140, Stock: 0},
	}

	demand := new(MockDemandReader)
	demand.On("Demand", mock.Anything, testAccount, fixedNow.AddDate(0, 0, -14)).Return(rows, nil)
	inProgress := new(MockInProgressReader)
	inProgress.On("InProgressProducts", mock.Anything, testAccount, manufacture.ChannelWildberriesFBS).
		Return(map[uuid.UUID]bool{r: true}, nil)

	resp, err := newTestAnalyzer(demand, inProgress).RankForAccount(context.Background(), rawAccount, RankRequest{})
	require.NoError(t, err)

	assert.Equal(t, rawAccount, resp.Account)
	assert.Equal(t, 14, resp.WindowDays)
	assert.Equal(t, 14, resp.MinCoverageDays)
	assert.Equal(t, "wildberries-fbs", resp.Channel)
	require.Equal(t, 3, resp.Total)

	assert.Equal(t, q, resp.Signals[0].Invariable)
	assert.Equal(t, int64(68), resp.Signals[0].NeededUnits())
	assert.Equal(t, p, resp.Signals[1].Invariable)
	assert.Equal(t, int64(32), resp.Signals[1].NeededUnits())
	// largest need, but already in production
	assert.Equal(t, r, resp.Signals[2].Invariable)
	assert.True(t, resp.Signals[2].ExistingManufacture)

	demand.AssertExpectations(t)
	inProgress.AssertExpectations(t)
}

func TestAnalyzer_RequestOverridesDefaults(t *testing.T) {
	demand := new(MockDemandReader)
	demand.On("Demand", mock.Anything, testAccount, fixedNow.AddDate(0, 0, -30)).Return([]replenishment.DemandRow{}, nil)
	inProgress := new(MockInProgressReader)
	inProgress.On("InProgressProducts", mock.Anything, testAccount, manufacture.ChannelWildberriesFBO).
		Return(map[uuid.UUID]bool{}, nil)

	resp, err := newTestAnalyzer(demand, inProgress).RankForAccount(context.Background(), rawAccount,
		RankRequest{WindowDays: 30, MinCoverageDays: 21, Channel: "wildberries-fbo"})
	require.NoError(t, err)

	assert.Equal(t, 30, resp.WindowDays)
	assert.Equal(t, 21, resp.MinCoverageDays)
	assert.Empty(t, resp.Signals)
	demand.AssertExpectations(t)
}

func TestAnalyzer_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		account string
		req     RankRequest
	}{
		{name: "malformed account", account: "not-a-uuid", req: RankRequest{}},
		{name: "nil account", account: uuid.Nil.String(), req: RankRequest{}},
		{name: "negative window", account: rawAccount, req: RankRequest{WindowDays: -1}},
		{name: "unknown channel", account: rawAccount, req: RankRequest{Channel: "ozon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			demand := new(MockDemandReader)
			inProgress := new(MockInProgressReader)

			_, err := newTestAnalyzer(demand, inProgress).RankForAccount(context.Background(), tt.account, tt.req)
			require.Error(t, err)
			assert.True(t, IsInvalidInput(err))
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
			demand.AssertNotCalled(t, "Demand", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAnalyzer_ReaderFailures(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("demand", func(t *testing.T) {
		demand := new(MockDemandReader)
		demand.On("Demand", mock.Anything, testAccount, mock.Anything).Return(nil, boom)

		_, err := newTestAnalyzer(demand, new(MockInProgressReader)).Rank(context.Background(), testAccount, replenishment.DefaultParams())
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsInvalidInput(err))
	})

	t.Run("in progress", func(t *testing.T) {
		demand := new(MockDemandReader)
		demand.On("Demand", mock.Anything, testAccount, mock.Anything).Return([]replenishment.DemandRow{}, nil)
		inProgress := new(MockInProgressReader)
		inProgress.On("InProgressProducts", mock.Anything, testAccount, mock.Anything).Return(nil, boom)

		_, err := newTestAnalyzer(demand, inProgress).Rank(context.Background(), testAccount, replenishment.DefaultParams())
		assert.ErrorIs(t, err, boom)
	})
}

func TestNewAnalyzer_InvalidDefaults(t *testing.T) {
	a := NewAnalyzer(nil, nil, replenishment.Params{}, nil)
	assert.Equal(t, replenishment.DefaultParams(), a.Defaults())
}
