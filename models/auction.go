package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionKind distinguishes the two solver competitions
type AuctionKind string

const (
	// AuctionKindSealedBid collects APY bids for EVM -> Sui intents until the window closes
	AuctionKindSealedBid AuctionKind = "sealed_bid"

	// AuctionKindDutch offers Sui -> EVM delivery at a required amount that decays over time
	AuctionKindDutch AuctionKind = "dutch"
)

type AuctionStatus string

const (
	AuctionStatusOpen    AuctionStatus = "open"
	AuctionStatusSettled AuctionStatus = "settled"
	AuctionStatusExpired AuctionStatus = "expired"
)

// Auction is a solver competition attached to exactly one intent
type Auction struct {
	ID           string          `json:"id"`
	IntentID     string          `json:"intent_id"`
	Kind         AuctionKind     `json:"kind"`
	Status       AuctionStatus   `json:"status"`
	MinAPYBps    int64           `json:"min_apy_bps"`
	StartAmount  decimal.Decimal `json:"start_amount"`
	FloorAmount  decimal.Decimal `json:"floor_amount"`
	StartsAt     time.Time       `json:"starts_at"`
	EndsAt       time.Time       `json:"ends_at"`
	WinningBidID string          `json:"winning_bid_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a *Auction) IsOpen() bool {
	return a.Status == AuctionStatusOpen
}

// Bid is a solver's offer. For sealed-bid auctions APYBps and Strategy matter,
// for Dutch auctions Amount is the output the solver commits to deliver.
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	Solver    string          `json:"solver"`
	APYBps    int64           `json:"apy_bps"`
	Strategy  YieldStrategy   `json:"strategy_id"`
	Amount    decimal.Decimal `json:"amount"`
	TxHash    string          `json:"tx_hash,omitempty"`
	VAA       string          `json:"vaa,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuctionResponse bundles an auction with its bids
type AuctionResponse struct {
	*Auction
	Bids         []*Bid `json:"bids"`
	CurrentPrice string `json:"current_price,omitempty"`
}
