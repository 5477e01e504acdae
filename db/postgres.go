package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

const intentColumns = `id, direction, status, source_address, dest_address, evm_chain, input_token,
	input_amount, usdc_amount, min_apy_bps, strategy, bridge_nonce, swap_tx_hash, bridge_tx_hash,
	dest_tx_hash, error_message, created_at, updated_at`

// version is maintained by the database and only read back
const intentSelectColumns = intentColumns + `, version`

const auctionColumns = `id, intent_id, kind, status, min_apy_bps, start_amount, floor_amount,
	starts_at, ends_at, winning_bid_id, created_at, updated_at`

const bidColumns = `id, auction_id, solver, apy_bps, strategy, amount, tx_hash, vaa, created_at`

const insertBidQuery = `
	INSERT INTO bids (` + bidColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// PostgresDB implements the Database interface using PostgreSQL
type PostgresDB struct {
	db *sql.DB
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	postgresDB := &PostgresDB{db: db}

	// Initialize the database schema
	if err := postgresDB.InitDB(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	return postgresDB, nil
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping checks if the database connection is alive
func (p *PostgresDB) Ping() error {
	return p.db.Ping()
}

// CreateIntent stores a new intent. Returns ErrIntentExists when the id is taken.
func (p *PostgresDB) CreateIntent(ctx context.Context, intent *models.Intent) error {
	query := `
		INSERT INTO intents (` + intentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO NOTHING
	`

	// Ensure created_at and updated_at are set
	now := time.Now().UTC()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	if intent.UpdatedAt.IsZero() {
		intent.UpdatedAt = now
	}

	result, err := p.db.ExecContext(ctx, query,
		intent.ID,
		string(intent.Direction),
		string(intent.Status),
		intent.SourceAddress,
		intent.DestAddress,
		string(intent.EvmChain),
		intent.InputToken,
		intent.InputAmount,
		intent.USDCAmount,
		intent.MinAPYBps,
		strategyValue(intent.Strategy),
		intent.BridgeNonce,
		intent.SwapTxHash,
		intent.BridgeTxHash,
		intent.DestTxHash,
		intent.ErrorMessage,
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create intent")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}

	if rows == 0 {
		return errors.Wrap(ErrIntentExists, intent.ID)
	}

	return nil
}

// GetIntent retrieves an intent by ID
func (p *PostgresDB) GetIntent(ctx context.Context, id string) (*models.Intent, error) {
	query := `SELECT ` + intentSelectColumns + ` FROM intents WHERE id = $1`

	intent, err := scanIntent(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(models.ErrIntentNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get intent")
	}

	return intent, nil
}

// UpdateIntent persists the mutable fields of an intent. The write only applies when the stored
// version still matches intent.Version, otherwise ErrIntentConflict is returned and the caller
// has to reload. On success intent.Version is bumped to the stored value.
func (p *PostgresDB) UpdateIntent(ctx context.Context, intent *models.Intent) error {
	query := `
		UPDATE intents
		SET status = $1,
			usdc_amount = $2,
			strategy = $3,
			bridge_nonce = $4,
			swap_tx_hash = $5,
			bridge_tx_hash = $6,
			dest_tx_hash = $7,
			error_message = $8,
			updated_at = $9,
			version = version + 1
		WHERE id = $10 AND version = $11
	`

	result, err := p.db.ExecContext(ctx, query,
		string(intent.Status),
		intent.USDCAmount,
		strategyValue(intent.Strategy),
		intent.BridgeNonce,
		intent.SwapTxHash,
		intent.BridgeTxHash,
		intent.DestTxHash,
		intent.ErrorMessage,
		intent.UpdatedAt,
		intent.ID,
		intent.Version,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update intent %s", intent.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}

	if rows == 0 {
		exists, err := p.IntentExists(ctx, intent.ID)
		if err != nil {
			return err
		}

		if !exists {
			return errors.Wrap(models.ErrIntentNotFound, intent.ID)
		}

		return errors.Wrapf(ErrIntentConflict, "%s at version %d", intent.ID, intent.Version)
	}

	intent.Version++

	return nil
}

// ListActiveIntents returns every intent that has not reached a terminal status, oldest first
func (p *PostgresDB) ListActiveIntents(ctx context.Context) ([]*models.Intent, error) {
	query := `SELECT ` + intentSelectColumns + ` FROM intents
		WHERE status NOT IN ($1, $2, $3)
		ORDER BY created_at ASC, id ASC`

	rows, err := p.db.QueryContext(ctx, query,
		string(models.IntentStatusCompleted),
		string(models.IntentStatusFailed),
		string(models.IntentStatusCancelled),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query active intents")
	}
	defer rows.Close()

	intents := []*models.Intent{}
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan intent")
		}
		intents = append(intents, intent)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating active intents")
	}

	return intents, nil
}

// IntentExists checks whether an intent with the given id is stored
func (p *PostgresDB) IntentExists(ctx context.Context, id string) (bool, error) {
	var exists bool

	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM intents WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check intent existence")
	}

	return exists, nil
}

// ListIntentsPaginated retrieves a page of intents, newest first, optionally filtered by status
func (p *PostgresDB) ListIntentsPaginated(
	ctx context.Context,
	page, pageSize int,
	status string,
) ([]*models.Intent, int, error) {
	var (
		where string
		args  []any
	)

	if status != "" {
		where = "WHERE status = $1"
		args = append(args, status)
	}

	return p.listIntents(ctx, where, args, page, pageSize)
}

// ListIntentsByAddressPaginated retrieves a page of intents where the address is the source or the destination
func (p *PostgresDB) ListIntentsByAddressPaginated(
	ctx context.Context,
	address string,
	page, pageSize int,
) ([]*models.Intent, int, error) {
	where := "WHERE LOWER(source_address) = $1 OR LOWER(dest_address) = $1"
	args := []any{strings.ToLower(address)}

	return p.listIntents(ctx, where, args, page, pageSize)
}

func (p *PostgresDB) listIntents(
	ctx context.Context,
	where string,
	args []any,
	page, pageSize int,
) ([]*models.Intent, int, error) {
	var total int

	countQuery := `SELECT COUNT(*) FROM intents ` + where
	if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count intents")
	}

	if total == 0 {
		return []*models.Intent{}, 0, nil
	}

	n := len(args)
	query := `SELECT ` + intentSelectColumns + ` FROM intents ` + where +
		` ORDER BY created_at DESC, id ASC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)

	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to query intents")
	}
	defer rows.Close()

	intents := make([]*models.Intent, 0, pageSize)
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan intent")
		}
		intents = append(intents, intent)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "error iterating intents")
	}

	return intents, total, nil
}

// CreateAuction stores a new auction
func (p *PostgresDB) CreateAuction(ctx context.Context, auction *models.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := p.db.ExecContext(ctx, query,
		auction.ID,
		auction.IntentID,
		string(auction.Kind),
		string(auction.Status),
		auction.MinAPYBps,
		auction.StartAmount,
		auction.FloorAmount,
		auction.StartsAt,
		auction.EndsAt,
		auction.WinningBidID,
		auction.CreatedAt,
		auction.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create auction")
	}

	return nil
}

// GetAuction retrieves an auction by ID
func (p *PostgresDB) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	auction, err := scanAuction(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(models.ErrAuctionNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get auction")
	}

	return auction, nil
}

// GetAuctionByIntent retrieves the auction attached to an intent
func (p *PostgresDB) GetAuctionByIntent(ctx context.Context, intentID string) (*models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE intent_id = $1 ORDER BY created_at DESC LIMIT 1`

	auction, err := scanAuction(p.db.QueryRowContext(ctx, query, intentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrAuctionNotFound, "intent %s", intentID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get auction by intent")
	}

	return auction, nil
}

// ListAuctions retrieves auctions ordered by their end time, optionally filtered by status
func (p *PostgresDB) ListAuctions(ctx context.Context, status string) ([]*models.Auction, error) {
	var (
		query = `SELECT ` + auctionColumns + ` FROM auctions`
		args  []any
	)

	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}

	query += ` ORDER BY ends_at ASC, id ASC`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query auctions")
	}
	defer rows.Close()

	auctions := []*models.Auction{}
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan auction")
		}
		auctions = append(auctions, auction)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating auctions")
	}

	return auctions, nil
}

// UpdateAuction closes an open auction. Only open auctions can be updated, so an auction
// is settled at most once; a second attempt returns models.ErrAuctionClosed.
func (p *PostgresDB) UpdateAuction(ctx context.Context, auction *models.Auction) error {
	query := `
		UPDATE auctions
		SET status = $1,
			winning_bid_id = $2,
			updated_at = $3
		WHERE id = $4 AND status = 'open'
	`

	result, err := p.db.ExecContext(ctx, query,
		string(auction.Status),
		auction.WinningBidID,
		auction.UpdatedAt,
		auction.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update auction %s", auction.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}

	if rows == 0 {
		return errors.Wrap(models.ErrAuctionClosed, auction.ID)
	}

	return nil
}

// SettleAuction stores the winning bid and closes the open auction in one transaction. When the
// auction is no longer open nothing is written and models.ErrAuctionClosed is returned.
func (p *PostgresDB) SettleAuction(ctx context.Context, auction *models.Auction, bid *models.Bid) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, insertBidQuery, bidArgs(bid)...); err != nil {
		return errors.Wrap(err, "failed to store winning bid")
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE auctions
		SET status = $1,
			winning_bid_id = $2,
			updated_at = $3
		WHERE id = $4 AND status = 'open'
	`, string(auction.Status), bid.ID, auction.UpdatedAt, auction.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to settle auction %s", auction.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}

	if rows == 0 {
		return errors.Wrap(models.ErrAuctionClosed, auction.ID)
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit settlement")
	}

	return nil
}

// CreateBid stores a solver bid
func (p *PostgresDB) CreateBid(ctx context.Context, bid *models.Bid) error {
	if _, err := p.db.ExecContext(ctx, insertBidQuery, bidArgs(bid)...); err != nil {
		return errors.Wrap(err, "failed to create bid")
	}

	return nil
}

func bidArgs(bid *models.Bid) []any {
	return []any{
		bid.ID,
		bid.AuctionID,
		bid.Solver,
		bid.APYBps,
		int16(bid.Strategy),
		bid.Amount,
		bid.TxHash,
		bid.VAA,
		bid.CreatedAt,
	}
}

// ListBids retrieves the bids of an auction in arrival order
func (p *PostgresDB) ListBids(ctx context.Context, auctionID string) ([]*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := p.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bids")
	}
	defer rows.Close()

	bids := []*models.Bid{}
	for rows.Next() {
		var (
			bid      models.Bid
			strategy int16
		)

		err := rows.Scan(
			&bid.ID,
			&bid.AuctionID,
			&bid.Solver,
			&bid.APYBps,
			&strategy,
			&bid.Amount,
			&bid.TxHash,
			&bid.VAA,
			&bid.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan bid")
		}

		bid.Strategy = models.YieldStrategy(strategy)
		bids = append(bids, &bid)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating bids")
	}

	return bids, nil
}

// GetLastProcessedBlock gets the last processed block number for a chain
func (p *PostgresDB) GetLastProcessedBlock(ctx context.Context, chainID uint64) (uint64, error) {
	query := `
		SELECT block_number
		FROM last_processed_blocks
		WHERE chain_id = $1
	`

	var blockNumber uint64
	err := p.db.QueryRowContext(ctx, query, chainID).Scan(&blockNumber)
	if errors.Is(err, sql.ErrNoRows) {
		// If no record exists, create one with a default value of 0
		if err := p.UpdateLastProcessedBlock(ctx, chainID, 0); err != nil {
			return 0, errors.Wrap(err, "failed to create default last processed block")
		}
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to get last processed block")
	}

	return blockNumber, nil
}

// UpdateLastProcessedBlock updates the last processed block number for a chain.
// The stored value never decreases.
func (p *PostgresDB) UpdateLastProcessedBlock(ctx context.Context, chainID uint64, blockNumber uint64) error {
	query := `
		INSERT INTO last_processed_blocks (chain_id, block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (chain_id) DO UPDATE
		SET block_number = $2,
			updated_at = NOW()
		WHERE last_processed_blocks.block_number < $2
	`

	if _, err := p.db.ExecContext(ctx, query, chainID, blockNumber); err != nil {
		return errors.Wrap(err, "failed to update last processed block")
	}

	return nil
}

// InitDB initializes the database schema
func (p *PostgresDB) InitDB(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS intents (
			id VARCHAR(66) PRIMARY KEY,
			direction VARCHAR(16) NOT NULL,
			status VARCHAR(20) NOT NULL,
			source_address VARCHAR(66) NOT NULL,
			dest_address VARCHAR(66) NOT NULL,
			evm_chain VARCHAR(32) NOT NULL,
			input_token VARCHAR(128) NOT NULL,
			input_amount VARCHAR(78) NOT NULL,
			usdc_amount VARCHAR(78) NOT NULL DEFAULT '',
			min_apy_bps BIGINT NOT NULL DEFAULT 0,
			strategy SMALLINT,
			bridge_nonce VARCHAR(128) NOT NULL DEFAULT '',
			swap_tx_hash VARCHAR(128) NOT NULL DEFAULT '',
			bridge_tx_hash VARCHAR(128) NOT NULL DEFAULT '',
			dest_tx_hash VARCHAR(128) NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			version BIGINT NOT NULL DEFAULT 0
		);

		ALTER TABLE intents ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;

		CREATE TABLE IF NOT EXISTS auctions (
			id VARCHAR(36) PRIMARY KEY,
			intent_id VARCHAR(66) NOT NULL REFERENCES intents(id),
			kind VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			min_apy_bps BIGINT NOT NULL DEFAULT 0,
			start_amount NUMERIC(38, 18) NOT NULL DEFAULT 0,
			floor_amount NUMERIC(38, 18) NOT NULL DEFAULT 0,
			starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
			ends_at TIMESTAMP WITH TIME ZONE NOT NULL,
			winning_bid_id VARCHAR(36) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS bids (
			id VARCHAR(36) PRIMARY KEY,
			auction_id VARCHAR(36) NOT NULL REFERENCES auctions(id),
			solver VARCHAR(66) NOT NULL,
			apy_bps BIGINT NOT NULL DEFAULT 0,
			strategy SMALLINT NOT NULL DEFAULT 0,
			amount NUMERIC(38, 18) NOT NULL DEFAULT 0,
			tx_hash VARCHAR(128) NOT NULL DEFAULT '',
			vaa TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		-- Table to store last processed block numbers
		CREATE TABLE IF NOT EXISTS last_processed_blocks (
			chain_id BIGINT PRIMARY KEY,
			block_number BIGINT NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_intents_status ON intents(status);
		CREATE INDEX IF NOT EXISTS idx_intents_created_at ON intents(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_intents_source_address ON intents(LOWER(source_address));
		CREATE INDEX IF NOT EXISTS idx_intents_dest_address ON intents(LOWER(dest_address));
		CREATE INDEX IF NOT EXISTS idx_auctions_intent_id ON auctions(intent_id);
		CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);
		CREATE INDEX IF NOT EXISTS idx_bids_auction_id ON bids(auction_id);
	`

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to initialize database schema")
	}

	return nil
}

func scanIntent(row rowScanner) (*models.Intent, error) {
	var (
		intent   models.Intent
		strategy sql.NullInt16
	)

	err := row.Scan(
		&intent.ID,
		&intent.Direction,
		&intent.Status,
		&intent.SourceAddress,
		&intent.DestAddress,
		&intent.EvmChain,
		&intent.InputToken,
		&intent.InputAmount,
		&intent.USDCAmount,
		&intent.MinAPYBps,
		&strategy,
		&intent.BridgeNonce,
		&intent.SwapTxHash,
		&intent.BridgeTxHash,
		&intent.DestTxHash,
		&intent.ErrorMessage,
		&intent.CreatedAt,
		&intent.UpdatedAt,
		&intent.Version,
	)
	if err != nil {
		return nil, err
	}

	if strategy.Valid {
		s := models.YieldStrategy(strategy.Int16)
		intent.Strategy = &s
	}

	return &intent, nil
}

func scanAuction(row rowScanner) (*models.Auction, error) {
	var auction models.Auction

	err := row.Scan(
		&auction.ID,
		&auction.IntentID,
		&auction.Kind,
		&auction.Status,
		&auction.MinAPYBps,
		&auction.StartAmount,
		&auction.FloorAmount,
		&auction.StartsAt,
		&auction.EndsAt,
		&auction.WinningBidID,
		&auction.CreatedAt,
		&auction.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &auction, nil
}

// strategyValue maps an optional strategy to a nullable column value
func strategyValue(s *models.YieldStrategy) any {
	if s == nil {
		return nil
	}
	return int16(*s)
}
