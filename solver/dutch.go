package solver

import (
	"time"

	"github.com/naisu-labs/naisu/models"
	"github.com/shopspring/decimal"
)

// DutchAuction is a required output that decays linearly from Start to Floor over Duration
type DutchAuction struct {
	Start    decimal.Decimal
	Floor    decimal.Decimal
	StartsAt time.Time
	Duration time.Duration
}

// NewDutchAuctionForIntent starts premiumBps above amount and decays to amount
func NewDutchAuctionForIntent(amount decimal.Decimal, premiumBps int64, duration time.Duration, now time.Time) DutchAuction {
	premium := decimal.New(premiumBps, -4)

	return DutchAuction{
		Start:    amount.Mul(decimal.NewFromInt(1).Add(premium)),
		Floor:    amount,
		StartsAt: now,
		Duration: duration,
	}
}

// DutchFromAuction rebuilds the decay curve of a stored auction
func DutchFromAuction(a *models.Auction) DutchAuction {
	return DutchAuction{
		Start:    a.StartAmount,
		Floor:    a.FloorAmount,
		StartsAt: a.StartsAt,
		Duration: a.EndsAt.Sub(a.StartsAt),
	}
}

func (d DutchAuction) EndsAt() time.Time {
	return d.StartsAt.Add(d.Duration)
}

// PriceAt returns the required output at t, clamped to [Floor, Start]
func (d DutchAuction) PriceAt(t time.Time) decimal.Decimal {
	if !t.After(d.StartsAt) {
		return d.Start
	}

	elapsed := t.Sub(d.StartsAt)
	if d.Duration <= 0 || elapsed >= d.Duration {
		return d.Floor
	}

	progress := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(d.Duration)))

	return d.Start.Sub(d.Start.Sub(d.Floor).Mul(progress))
}

func (d DutchAuction) Expired(t time.Time) bool {
	return !t.Before(d.EndsAt())
}

// CanFill is true while the auction runs and amount covers the current price
func (d DutchAuction) CanFill(amount decimal.Decimal, t time.Time) bool {
	if d.Expired(t) {
		return false
	}

	return amount.GreaterThanOrEqual(d.PriceAt(t))
}
