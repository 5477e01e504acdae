package solver

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/naisu-labs/naisu/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectWinner(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	bid := func(id string, apy int64, offset time.Duration) *models.Bid {
		return &models.Bid{ID: id, APYBps: apy, CreatedAt: now.Add(offset)}
	}

	for _, tt := range []struct {
		name     string
		bids     []*models.Bid
		minAPY   int64
		expected string
		err      error
	}{
		{
			name:     "highest apy",
			bids:     []*models.Bid{bid("a", 700, 0), bid("b", 850, time.Second), bid("c", 800, 0)},
			expected: "b",
		},
		{
			name:     "tie goes to earliest",
			bids:     []*models.Bid{bid("a", 850, 2*time.Second), bid("b", 850, time.Second)},
			expected: "b",
		},
		{
			name:     "tie at same time goes to smallest id",
			bids:     []*models.Bid{bid("z", 850, 0), bid("m", 850, 0)},
			expected: "m",
		},
		{
			name:     "below minimum ignored",
			bids:     []*models.Bid{bid("a", 900, 0), bid("b", 400, 0)},
			minAPY:   500,
			expected: "a",
		},
		{
			name:   "nothing eligible",
			bids:   []*models.Bid{bid("a", 100, 0)},
			minAPY: 500,
			err:    ErrNoEligibleBids,
		},
		{
			name: "no bids",
			err:  ErrNoEligibleBids,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			winner, err := SelectWinner(tt.bids, tt.minAPY)

			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, winner.ID)
		})
	}
}

func TestDutchAuction(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	auction := NewDutchAuctionForIntent(decimal.NewFromInt(100), 100, 100*time.Second, start)

	t.Run("start has premium", func(t *testing.T) {
		assert.Equal(t, "101", auction.Start.String())
		assert.Equal(t, "100", auction.Floor.String())
	})

	t.Run("price decays linearly", func(t *testing.T) {
		assert.Equal(t, "101", auction.PriceAt(start.Add(-time.Minute)).String())
		assert.Equal(t, "101", auction.PriceAt(start).String())
		assert.Equal(t, "100.5", auction.PriceAt(start.Add(50*time.Second)).String())
		assert.Equal(t, "100.25", auction.PriceAt(start.Add(75*time.Second)).String())
		assert.Equal(t, "100", auction.PriceAt(start.Add(time.Hour)).String())
	})

	t.Run("can fill", func(t *testing.T) {
		mid := start.Add(50 * time.Second)

		assert.True(t, auction.CanFill(decimal.RequireFromString("100.5"), mid))
		assert.False(t, auction.CanFill(decimal.RequireFromString("100.4"), mid))
		assert.False(t, auction.Expired(mid))
	})

	t.Run("expired", func(t *testing.T) {
		end := start.Add(100 * time.Second)

		assert.True(t, auction.Expired(end))
		assert.False(t, auction.CanFill(decimal.NewFromInt(1000), end))
	})

	t.Run("from stored auction", func(t *testing.T) {
		stored := &models.Auction{
			StartAmount: auction.Start,
			FloorAmount: auction.Floor,
			StartsAt:    auction.StartsAt,
			EndsAt:      auction.EndsAt(),
		}

		assert.Equal(t, auction.Duration, DutchFromAuction(stored).Duration)
	})
}

func TestQuoter(t *testing.T) {
	t.Parallel()

	q := Quoter{SpreadBps: 50}

	assert.Equal(t, int64(800), q.BidAPY(850))
	assert.Equal(t, int64(0), q.BidAPY(20))
	assert.Equal(t, "99.5", q.DeliverAmount(decimal.NewFromInt(100)).String())
}

func TestRulesCheck(t *testing.T) {
	t.Parallel()

	rules := Rules{MaxAmount: decimal.NewFromInt(1000), MinAPYBps: 300}

	assert.NoError(t, rules.Check(decimal.NewFromInt(500), 400))
	assert.ErrorIs(t, rules.Check(decimal.NewFromInt(1001), 400), ErrAmountTooLarge)
	assert.ErrorIs(t, rules.Check(decimal.NewFromInt(10), 299), ErrAPYTooLow)

	// no max configured
	assert.NoError(t, Rules{}.Check(decimal.NewFromInt(1_000_000), 0))

	assert.NoError(t, rules.CheckAmount(decimal.NewFromInt(1000)))
	assert.ErrorIs(t, rules.CheckAmount(decimal.RequireFromString("1000.01")), ErrAmountTooLarge)
}

type balanceCaller struct {
	balance *big.Int
	to      common.Address
}

func (c *balanceCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (c *balanceCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.to = *msg.To
	return erc20ABI.Methods["balanceOf"].Outputs.Pack(c.balance)
}

func TestEnoughBalance(t *testing.T) {
	t.Parallel()

	token := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	owner := common.HexToAddress("0x1")

	// 2.5 USDC
	caller := &balanceCaller{balance: big.NewInt(2_500_000)}

	ok, err := EnoughBalance(context.Background(), caller, token, owner, decimal.RequireFromString("2.5"), 6)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, token, caller.to)

	ok, err = EnoughBalance(context.Background(), caller, token, owner, decimal.RequireFromString("2.500001"), 6)
	require.NoError(t, err)
	assert.False(t, ok)
}
