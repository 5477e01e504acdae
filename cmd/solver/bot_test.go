package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const solverAddr = "0x1234567890123456789012345678901234567890"

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ListAuctions(ctx context.Context, status models.AuctionStatus) ([]*models.Auction, error) {
	args := m.Called(ctx, status)
	auctions, _ := args.Get(0).([]*models.Auction)
	return auctions, args.Error(1)
}

func (m *mockAPI) GetAuction(ctx context.Context, id string) (*models.AuctionResponse, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.AuctionResponse)
	return res, args.Error(1)
}

func (m *mockAPI) GetIntent(ctx context.Context, id string) (*models.IntentResponse, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.IntentResponse)
	return res, args.Error(1)
}

func (m *mockAPI) ListStrategies(ctx context.Context) ([]*models.StrategyResponse, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]*models.StrategyResponse)
	return res, args.Error(1)
}

func (m *mockAPI) SubmitBid(ctx context.Context, auctionID string, bid models.SubmitBidRequest) (*models.Bid, error) {
	args := m.Called(ctx, auctionID, bid)
	res, _ := args.Get(0).(*models.Bid)
	return res, args.Error(1)
}

func (m *mockAPI) Fill(ctx context.Context, auctionID string, fill models.FillRequest) (*models.Bid, error) {
	args := m.Called(ctx, auctionID, fill)
	res, _ := args.Get(0).(*models.Bid)
	return res, args.Error(1)
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T, balance balanceFunc) (*bot, *mockAPI) {
	client := &mockAPI{}

	cfg := solverConfig{
		APIURL:       "http://localhost",
		Address:      solverAddr,
		SpreadBps:    50,
		MinAPYBps:    300,
		MaxAmount:    "1000",
		PollInterval: time.Second,
	}

	b, err := newBot(client, cfg, balance, logging.NewTesting(t))
	require.NoError(t, err)

	b.now = func() time.Time { return now }

	return b, client
}

func liveStrategies() []*models.StrategyResponse {
	return []*models.StrategyResponse{
		{ID: 1, Name: "Scallop USDC Lending", APY: "8.50", Enabled: true},
		{ID: 3, Name: "Navi USDC Lending", APY: "7.20", Enabled: true},
		{ID: 5, Name: "Custom Strategy", APY: "12.00", Enabled: false},
	}
}

func sealedAuction(minAPY int64) *models.Auction {
	return &models.Auction{
		ID:        "a1",
		IntentID:  "i1",
		Kind:      models.AuctionKindSealedBid,
		Status:    models.AuctionStatusOpen,
		MinAPYBps: minAPY,
		StartsAt:  now.Add(-10 * time.Second),
		EndsAt:    now.Add(20 * time.Second),
	}
}

func dutchAuction() *models.Auction {
	return &models.Auction{
		ID:          "d1",
		IntentID:    "i2",
		Kind:        models.AuctionKindDutch,
		Status:      models.AuctionStatusOpen,
		StartAmount: decimal.RequireFromString("101"),
		FloorAmount: decimal.RequireFromString("100"),
		StartsAt:    now.Add(-time.Minute),
		EndsAt:      now.Add(4 * time.Minute),
	}
}

func TestTickSealedBid(t *testing.T) {
	t.Run("bids on the best strategy once", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		b, client := newTestBot(t, nil)

		client.On("ListAuctions", mock.Anything, models.AuctionStatusOpen).Return([]*models.Auction{sealedAuction(500)}, nil)
		client.On("ListStrategies", mock.Anything).Return(liveStrategies(), nil)
		client.On("GetIntent", mock.Anything, "i1").Return(&models.IntentResponse{ID: "i1", InputAmount: "100"}, nil)
		client.
			On("SubmitBid", mock.Anything, "a1", models.SubmitBidRequest{Solver: solverAddr, APYBps: 800, StrategyID: 1}).
			Return(&models.Bid{ID: "b1"}, nil)

		// ACT
		require.NoError(t, b.Tick(context.Background()))
		require.NoError(t, b.Tick(context.Background()))

		// ASSERT
		client.AssertExpectations(t)
		client.AssertNumberOfCalls(t, "SubmitBid", 1)
	})

	t.Run("skips when the bid is below the intent minimum", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		b, client := newTestBot(t, nil)

		client.On("ListAuctions", mock.Anything, models.AuctionStatusOpen).Return([]*models.Auction{sealedAuction(900)}, nil)
		client.On("ListStrategies", mock.Anything).Return(liveStrategies(), nil)
		client.On("GetIntent", mock.Anything, "i1").Return(&models.IntentResponse{ID: "i1", InputAmount: "100"}, nil)

		// ACT
		require.NoError(t, b.Tick(context.Background()))
		require.NoError(t, b.Tick(context.Background()))

		// ASSERT
		client.AssertNotCalled(t, "SubmitBid", mock.Anything, mock.Anything, mock.Anything)
		client.AssertNumberOfCalls(t, "ListStrategies", 1)
	})

	t.Run("skips amounts above the limit", func(t *testing.T) {
		t.Parallel()

		b, client := newTestBot(t, nil)

		client.On("ListAuctions", mock.Anything, models.AuctionStatusOpen).Return([]*models.Auction{sealedAuction(0)}, nil)
		client.On("ListStrategies", mock.Anything).Return(liveStrategies(), nil)
		client.On("GetIntent", mock.Anything, "i1").Return(&models.IntentResponse{ID: "i1", InputAmount: "5000"}, nil)

		require.NoError(t, b.Tick(context.Background()))

		client.AssertNotCalled(t, "SubmitBid", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("conflict is final", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		b, client := newTestBot(t, nil)

		client.On("ListAuctions", mock.Anything, models.AuctionStatusOpen).Return([]*models.Auction{sealedAuction(0)}, nil)
		client.On("ListStrategies", mock.Anything).Return(liveStrategies(), nil)
		client.On("GetIntent", mock.Anything, "i1").Return(&models.IntentResponse{ID: "i1", InputAmount: "1"}, nil)
		client.
			On("SubmitBid", mock.Anything, "a1", mock.Anything).
			Return(nil, &rest.APIError{Service: "naisu", Status: http.StatusConflict, Body: "auction closed"})

		// ACT
		require.NoError(t, b.Tick(context.Background()))
		require.NoError(t, b.Tick(context.Background()))

		// ASSERT
		client.AssertNumberOfCalls(t, "SubmitBid", 1)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		b, client := newTestBot(t, nil)

		client.On("ListAuctions", mock.Anything, models.AuctionStatusOpen).Return([]*models.Auction{sealedAuction(0)}, nil)
		client.On("ListStrategies", mock.Anything).Return(nil, errors.New("connection refused"))

		// ACT
		require.NoError(t, b.Tick(context.Background()))
		require.NoError(t, b.Tick(context.Background()))

		// ASSERT
		client.AssertNumberOfCalls(t, "ListStrategies", 2)
	})

	t.Run("ended auctions are ignored", func(t *testing.T) {
		t.Parallel()

		b, client := newTestBot(t, nil)

		ended := sealedAuction(0)
		ended.EndsAt = now

		client.On("ListAuctions", mock.Anything, models.AuctionStatusOpen).Return([]*models.Auction{ended}, nil)

		require.NoError(t, b.Tick(context.Background()))

		client.AssertNotCalled(t, "ListStrategies", mock.Anything)
	})

	t.Run("list failure", func(t *testing.T) {
		t.Parallel()

		b, client := newTestBot(t, nil)

		client.On("ListAuctions", mock.Anything, models.AuctionStatusOpen).Return(nil, errors.New("boom"))

		assert.Error(t, b.Tick(context.Background()))
	})
}

func TestTickDutch(t *testing.T) {
	tests := []struct {
		name         string
		currentPrice string
		balance      balanceFunc
		expectFill   string
	}{
		{
			// spread 50 bps on 101 delivers 100.495
			name:         "fills at the rounded up price",
			currentPrice: "100.4000001",
			expectFill:   "100.400001",
		},
		{
			name:         "waits while the price is too high",
			currentPrice: "100.9",
		},
		{
			name:         "waits without enough balance",
			currentPrice: "100.2",
			balance:      func(context.Context, decimal.Decimal) (bool, error) { return false, nil },
		},
		{
			name:         "fills with enough balance",
			currentPrice: "100.2",
			balance:      func(context.Context, decimal.Decimal) (bool, error) { return true, nil },
			expectFill:   "100.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// ARRANGE
			b, client := newTestBot(t, tt.balance)
			auction := dutchAuction()

			client.On("ListAuctions", mock.Anything, models.AuctionStatusOpen).Return([]*models.Auction{auction}, nil)
			client.
				On("GetAuction", mock.Anything, "d1").
				Return(&models.AuctionResponse{Auction: auction, CurrentPrice: tt.currentPrice}, nil)

			if tt.expectFill != "" {
				client.
					On("Fill", mock.Anything, "d1", models.FillRequest{Solver: solverAddr, Amount: tt.expectFill}).
					Return(&models.Bid{ID: "f1"}, nil)
			}

			// ACT
			require.NoError(t, b.Tick(context.Background()))
			require.NoError(t, b.Tick(context.Background()))

			// ASSERT
			if tt.expectFill == "" {
				client.AssertNotCalled(t, "Fill", mock.Anything, mock.Anything, mock.Anything)
				client.AssertNumberOfCalls(t, "GetAuction", 2)
				return
			}

			client.AssertExpectations(t)
			client.AssertNumberOfCalls(t, "Fill", 1)
		})
	}
}

func TestQuote(t *testing.T) {
	t.Run("sealed bid", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		b, client := newTestBot(t, nil)

		client.On("ListAuctions", mock.Anything, models.AuctionStatus("")).Return([]*models.Auction{sealedAuction(500)}, nil)
		client.On("ListStrategies", mock.Anything).Return(liveStrategies(), nil)
		client.On("GetIntent", mock.Anything, "i1").Return(&models.IntentResponse{ID: "i1", InputAmount: "100"}, nil)

		// ACT
		q, err := b.Quote(context.Background(), "i1")

		// ASSERT
		require.NoError(t, err)
		assert.True(t, q.Eligible)
		assert.Equal(t, int64(800), q.APYBps)
		assert.Equal(t, uint8(1), q.StrategyID)
		assert.Equal(t, "a1", q.AuctionID)
	})

	t.Run("dutch not yet fillable", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		b, client := newTestBot(t, nil)
		auction := dutchAuction()

		client.On("ListAuctions", mock.Anything, models.AuctionStatus("")).Return([]*models.Auction{auction}, nil)
		client.
			On("GetAuction", mock.Anything, "d1").
			Return(&models.AuctionResponse{Auction: auction, CurrentPrice: "100.8"}, nil)

		// ACT
		q, err := b.Quote(context.Background(), "i2")

		// ASSERT
		require.NoError(t, err)
		assert.False(t, q.Eligible)
		assert.Equal(t, "100.8", q.Price)
		assert.Contains(t, q.Reason, "100.495000")
	})

	t.Run("settled auction", func(t *testing.T) {
		t.Parallel()

		b, client := newTestBot(t, nil)

		settled := sealedAuction(0)
		settled.Status = models.AuctionStatusSettled

		client.On("ListAuctions", mock.Anything, models.AuctionStatus("")).Return([]*models.Auction{settled}, nil)

		q, err := b.Quote(context.Background(), "i1")

		require.NoError(t, err)
		assert.False(t, q.Eligible)
		assert.Equal(t, "auction is settled", q.Reason)
	})

	t.Run("unknown intent", func(t *testing.T) {
		t.Parallel()

		b, client := newTestBot(t, nil)

		client.On("ListAuctions", mock.Anything, models.AuctionStatus("")).Return([]*models.Auction{}, nil)

		_, err := b.Quote(context.Background(), "nope")

		assert.ErrorIs(t, err, models.ErrAuctionNotFound)
	})
}

func TestBestStrategy(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name       string
		strategies []*models.StrategyResponse
		expectedID uint8
		expectedBp int64
	}{
		{
			name:       "highest enabled",
			strategies: liveStrategies(),
			expectedID: 1,
			expectedBp: 850,
		},
		{
			name: "tie goes to lowest id",
			strategies: []*models.StrategyResponse{
				{ID: 4, APY: "3.80", Enabled: true},
				{ID: 2, APY: "3.80", Enabled: true},
			},
			expectedID: 2,
			expectedBp: 380,
		},
		{
			name:       "unparseable apy skipped",
			strategies: []*models.StrategyResponse{{ID: 1, APY: "n/a", Enabled: true}, {ID: 3, APY: "1.05", Enabled: true}},
			expectedID: 3,
			expectedBp: 105,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			best, bps := bestStrategy(tt.strategies)

			require.NotNil(t, best)
			assert.Equal(t, tt.expectedID, best.ID)
			assert.Equal(t, tt.expectedBp, bps)
		})
	}

	t.Run("none enabled", func(t *testing.T) {
		best, _ := bestStrategy([]*models.StrategyResponse{{ID: 1, APY: "8.50"}})

		assert.Nil(t, best)
	})
}
