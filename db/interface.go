package db

import (
	"context"

	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

// ErrIntentExists is returned by CreateIntent when an intent with the same id is already stored
var ErrIntentExists = errors.New("intent already exists")

// ErrIntentConflict is returned by UpdateIntent when the stored intent changed since it was read
var ErrIntentConflict = errors.New("intent was modified concurrently")

// Database interface defines the methods that a database implementation must provide
type Database interface {
	// Database connection management
	Close() error
	Ping() error

	// Intent operations
	CreateIntent(ctx context.Context, intent *models.Intent) error
	GetIntent(ctx context.Context, id string) (*models.Intent, error)
	UpdateIntent(ctx context.Context, intent *models.Intent) error
	IntentExists(ctx context.Context, id string) (bool, error)
	ListActiveIntents(ctx context.Context) ([]*models.Intent, error)
	ListIntentsPaginated(ctx context.Context, page, pageSize int, status string) ([]*models.Intent, int, error)
	ListIntentsByAddressPaginated(
		ctx context.Context,
		address string,
		page, pageSize int,
	) ([]*models.Intent, int, error)

	// Auction operations
	CreateAuction(ctx context.Context, auction *models.Auction) error
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	GetAuctionByIntent(ctx context.Context, intentID string) (*models.Auction, error)
	ListAuctions(ctx context.Context, status string) ([]*models.Auction, error)
	UpdateAuction(ctx context.Context, auction *models.Auction) error
	SettleAuction(ctx context.Context, auction *models.Auction, bid *models.Bid) error

	// Bid operations
	CreateBid(ctx context.Context, bid *models.Bid) error
	ListBids(ctx context.Context, auctionID string) ([]*models.Bid, error)

	// Block tracking operations
	GetLastProcessedBlock(ctx context.Context, chainID uint64) (uint64, error)
	UpdateLastProcessedBlock(ctx context.Context, chainID uint64, blockNumber uint64) error

	// Database initialization
	InitDB(ctx context.Context) error
}
