package solver

import (
	"github.com/shopspring/decimal"
)

// Quoter prices a solver's bids by keeping SpreadBps for itself
type Quoter struct {
	SpreadBps int64
}

func (q Quoter) spread() decimal.Decimal {
	return decimal.New(q.SpreadBps, -4)
}

// BidAPY is the APY offered to the user, in bps, for a strategy paying strategyAPYBps
func (q Quoter) BidAPY(strategyAPYBps int64) int64 {
	bid := strategyAPYBps - q.SpreadBps
	if bid < 0 {
		return 0
	}
	return bid
}

// DeliverAmount is what the solver commits to deliver for input
func (q Quoter) DeliverAmount(input decimal.Decimal) decimal.Decimal {
	return input.Mul(decimal.NewFromInt(1).Sub(q.spread()))
}
