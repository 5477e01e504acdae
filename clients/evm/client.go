package evm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/naisu-labs/naisu/config"
	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	verifyTimeout = 5 * time.Second
	headTimeout   = 15 * time.Second
)

var ErrChainMismatch = errors.New("rpc serves a different chain")

// ResolveClientsFromConfig dials every chain with a deployed hook concurrently.
// Chains without a hook are skipped; any failed dial fails the whole set.
func ResolveClientsFromConfig(
	ctx context.Context,
	cfg config.Config,
	logger zerolog.Logger,
) (map[uint64]*ethclient.Client, error) {
	var mu sync.Mutex

	clients := make(map[uint64]*ethclient.Client, len(cfg.ChainConfigs))
	g, gctx := errgroup.WithContext(ctx)

	for _, chain := range cfg.ChainConfigs {
		if !chain.HasHook() {
			logger.Warn().Uint64(logging.FieldChain, chain.ChainID).Msg("Hook address not set, skipping chain")
			continue
		}

		g.Go(func() error {
			client, err := Dial(gctx, *chain, logger)
			if err != nil {
				return errors.Wrapf(err, "chain %d", chain.ChainID)
			}

			mu.Lock()
			defer mu.Unlock()
			clients[chain.ChainID] = client

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, client := range clients {
			client.Close()
		}
		return nil, err
	}

	return clients, nil
}

// Dial connects to chain.RPCURL and checks the node serves chain.ChainID.
// WebSocket endpoints must also push new heads, the hook listener subscribes through them.
func Dial(ctx context.Context, chain config.ChainConfig, logger zerolog.Logger) (*ethclient.Client, error) {
	logger = logger.With().
		Uint64(logging.FieldChain, chain.ChainID).
		Str("chain_name", chain.Chain.Name()).
		Str(logging.FieldModule, "evm_client").
		Logger()

	rpcClient, err := rpc.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial rpc")
	}

	client := ethclient.NewClient(rpcClient)

	head, err := verifyChain(ctx, client, chain.ChainID)
	if err != nil {
		client.Close()
		return nil, err
	}

	ws := IsWebSocketURL(chain.RPCURL)
	if ws {
		if err := waitForHead(ctx, client, logger); err != nil {
			client.Close()
			return nil, err
		}
	} else {
		logger.Warn().Msg("HTTP RPC, hook events will be polled")
	}

	logger.Info().
		Bool("is_websocket", ws).
		Uint64(logging.FieldBlock, head).
		Msg("EVM client ready")

	return client, nil
}

// verifyChain returns the current head once the node's chain id matches
func verifyChain(ctx context.Context, client *ethclient.Client, chainID uint64) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	served, err := client.ChainID(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get chain id")
	}

	if !served.IsUint64() || served.Uint64() != chainID {
		return 0, errors.Wrapf(ErrChainMismatch, "expected %d, got %s", chainID, served)
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get block number")
	}

	return head, nil
}

func waitForHead(ctx context.Context, client *ethclient.Client, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, headTimeout)
	defer cancel()

	headers := make(chan *types.Header, 1)

	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return errors.Wrap(err, "newHeads subscription failed")
	}
	defer sub.Unsubscribe()

	select {
	case header := <-headers:
		logger.Debug().
			Uint64(logging.FieldBlock, header.Number.Uint64()).
			Str("block_hash", header.Hash().Hex()).
			Msg("Subscription delivered a head")
		return nil
	case err := <-sub.Err():
		return errors.Wrap(err, "newHeads subscription dropped")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "no head received over websocket")
	}
}

// IsWebSocketURL reports whether the RPC endpoint supports log subscriptions
func IsWebSocketURL(url string) bool {
	return strings.HasPrefix(url, "wss://") || strings.HasPrefix(url, "ws://")
}
