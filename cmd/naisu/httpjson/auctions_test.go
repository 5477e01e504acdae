package httpjson

import (
	"net/http"
	"testing"
	"time"

	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const auctionID = "a1b2c3d4-0000-4000-8000-000000000001"

func sealedAuction(endsIn time.Duration) *models.Auction {
	now := time.Now().UTC()

	return &models.Auction{
		ID:        auctionID,
		IntentID:  validID,
		Kind:      models.AuctionKindSealedBid,
		Status:    models.AuctionStatusOpen,
		MinAPYBps: 500,
		StartsAt:  now.Add(-time.Second),
		EndsAt:    now.Add(endsIn),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func dutchAuction() *models.Auction {
	now := time.Now().UTC()

	return &models.Auction{
		ID:          auctionID,
		IntentID:    validID,
		Kind:        models.AuctionKindDutch,
		Status:      models.AuctionStatusOpen,
		StartAmount: decimal.RequireFromString("10.1"),
		FloorAmount: decimal.RequireFromString("10"),
		StartsAt:    now,
		EndsAt:      now.Add(5 * time.Minute),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestAuctions(t *testing.T) {
	t.Run("List", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)
		ts.Database.On("ListAuctions", mock.Anything, "open").Return([]*models.Auction{dutchAuction()}, nil)

		// ACT
		res, err := ts.Client.Get().AddPath("/api/v1/auctions").AddQuery("status", "open").Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assertResponseContainsJSON(t, res, "data.0.kind", "dutch")
	})

	t.Run("List rejects unknown status", func(t *testing.T) {
		t.Parallel()

		ts := newTestSuite(t)

		res, err := ts.Client.Get().AddPath("/api/v1/auctions").AddQuery("status", "paused").Do()

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("Get dutch with current price", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)

		bid := &models.Bid{ID: "bid-1", AuctionID: auctionID, Solver: "0xsolver", Amount: decimal.NewFromInt(10)}

		ts.Database.On("GetAuction", mock.Anything, auctionID).Return(dutchAuction(), nil)
		ts.Database.On("ListBids", mock.Anything, auctionID).Return([]*models.Bid{bid}, nil)

		// ACT
		res, err := ts.Client.Get().AddPath("/api/v1/auctions/" + auctionID).Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assertResponseContainsJSON(t, res, "data.id", auctionID)
		assertResponseContainsJSON(t, res, "data.bids.0.solver", "0xsolver")
		assertResponseContainsJSON(t, res, "data.current_price", "10.")
	})

	t.Run("Get sealed bid has no price", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)

		ts.Database.On("GetAuction", mock.Anything, auctionID).Return(sealedAuction(time.Minute), nil)
		ts.Database.On("ListBids", mock.Anything, auctionID).Return(nil, nil)

		// ACT
		res, err := ts.Client.Get().AddPath("/api/v1/auctions/" + auctionID).Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Empty(t, resJSON(res, "data.current_price"))
		assertResponseContainsJSON(t, res, "data.bids.#", "0")
	})

	t.Run("Get not found", func(t *testing.T) {
		t.Parallel()

		ts := newTestSuite(t)
		ts.Database.
			On("GetAuction", mock.Anything, "missing").
			Return(nil, errors.Wrap(models.ErrAuctionNotFound, "missing"))

		res, err := ts.Client.Get().AddPath("/api/v1/auctions/missing").Do()

		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("SubmitBid", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name           string
			auction        *models.Auction
			request        models.SubmitBidRequest
			expectedStatus int
		}{
			{
				name:           "accepted",
				auction:        sealedAuction(time.Minute),
				request:        models.SubmitBidRequest{Solver: "0xsolver", APYBps: 850, StrategyID: 1},
				expectedStatus: http.StatusCreated,
			},
			{
				name:           "below minimum",
				auction:        sealedAuction(time.Minute),
				request:        models.SubmitBidRequest{Solver: "0xsolver", APYBps: 100, StrategyID: 1},
				expectedStatus: http.StatusBadRequest,
			},
			{
				name:           "window closed",
				auction:        sealedAuction(-time.Second),
				request:        models.SubmitBidRequest{Solver: "0xsolver", APYBps: 850, StrategyID: 1},
				expectedStatus: http.StatusConflict,
			},
			{
				name:           "wrong kind",
				auction:        dutchAuction(),
				request:        models.SubmitBidRequest{Solver: "0xsolver", APYBps: 850, StrategyID: 1},
				expectedStatus: http.StatusBadRequest,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				// ARRANGE
				ts := newTestSuite(t)

				ts.Database.On("GetAuction", mock.Anything, auctionID).Return(tt.auction, nil)
				ts.Database.On("CreateBid", mock.Anything, mock.Anything).Return(nil)

				// ACT
				res, err := ts.Client.Post().AddPath("/api/v1/auctions/" + auctionID + "/bids").JSON(tt.request).Do()

				// ASSERT
				require.NoError(t, err)
				require.Equal(t, tt.expectedStatus, res.StatusCode, res.String())

				if tt.expectedStatus == http.StatusCreated {
					assertResponseContainsJSON(t, res, "data.apy_bps", "850")
					ts.Database.AssertCalled(t, "CreateBid", mock.Anything, mock.Anything)
				} else {
					ts.Database.AssertNotCalled(t, "CreateBid", mock.Anything, mock.Anything)
				}
			})
		}
	})

	t.Run("Fill", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ts := newTestSuite(t)

		ts.Database.On("GetAuction", mock.Anything, auctionID).Return(dutchAuction(), nil)
		ts.Database.On("SettleAuction", mock.Anything, mock.MatchedBy(func(a *models.Auction) bool {
			return a.Status == models.AuctionStatusSettled && a.WinningBidID != ""
		}), mock.Anything).Return(nil)

		req := models.FillRequest{Solver: "0xsolver", Amount: "10.2"}

		// ACT
		res, err := ts.Client.Post().AddPath("/api/v1/auctions/" + auctionID + "/fill").JSON(req).Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, res.StatusCode, res.String())
		assertResponseContainsJSON(t, res, "data.amount", "10.2")
		ts.Database.AssertExpectations(t)
	})

	t.Run("Fill below price", func(t *testing.T) {
		t.Parallel()

		ts := newTestSuite(t)
		ts.Database.On("GetAuction", mock.Anything, auctionID).Return(dutchAuction(), nil)

		req := models.FillRequest{Solver: "0xsolver", Amount: "9"}

		res, err := ts.Client.Post().AddPath("/api/v1/auctions/" + auctionID + "/fill").JSON(req).Do()

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assertResponseContainsJSON(t, res, "error", "below")
	})

	t.Run("Fill twice", func(t *testing.T) {
		t.Parallel()

		ts := newTestSuite(t)

		settled := dutchAuction()
		settled.Status = models.AuctionStatusSettled
		ts.Database.On("GetAuction", mock.Anything, auctionID).Return(settled, nil)

		req := models.FillRequest{Solver: "0xsolver", Amount: "10.2"}

		res, err := ts.Client.Post().AddPath("/api/v1/auctions/" + auctionID + "/fill").JSON(req).Do()

		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, res.StatusCode)
	})
}
