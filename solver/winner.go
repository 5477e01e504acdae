// Package solver holds the competition math shared by the API's auction settlement
// and the solver bot: winner selection, Dutch price decay, quoting and bid rules.
package solver

import (
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

var ErrNoEligibleBids = errors.New("no eligible bids")

// SelectWinner returns the highest-APY bid at or above minAPYBps.
// Equal APYs go to the earliest bid, then to the smallest id.
func SelectWinner(bids []*models.Bid, minAPYBps int64) (*models.Bid, error) {
	var winner *models.Bid

	for _, bid := range bids {
		if bid == nil || bid.APYBps < minAPYBps {
			continue
		}

		if winner == nil || beats(bid, winner) {
			winner = bid
		}
	}

	if winner == nil {
		return nil, ErrNoEligibleBids
	}

	return winner, nil
}

func beats(a, b *models.Bid) bool {
	switch {
	case a.APYBps != b.APYBps:
		return a.APYBps > b.APYBps
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return a.ID < b.ID
	}
}
