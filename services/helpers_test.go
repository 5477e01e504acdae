package services

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/naisu-labs/naisu/clients/evm"
	"github.com/naisu-labs/naisu/config"
	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/services/mocks"
	"github.com/stretchr/testify/require"
)

const testChainID uint64 = 84532

var (
	testHook = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testUser = common.HexToAddress("0x9876543210987654321098765432109876543210")
	testUSDC = common.HexToAddress(models.USDCBaseSepolia.Address)
)

func testChain(rpcURL string) config.ChainConfig {
	return config.ChainConfig{
		ChainID:     testChainID,
		Chain:       models.EvmChainBaseSepolia,
		RPCURL:      rpcURL,
		HookAddress: testHook.Hex(),
	}
}

type listenerFixture struct {
	listener  *HookListenerService
	client    *mocks.MockChainClient
	db        *db.MockDB
	sink      *mocks.MockIntentSink
	publisher *mocks.RecordingPublisher
}

func newListenerFixture(t *testing.T) listenerFixture {
	t.Helper()

	f := listenerFixture{
		client:    &mocks.MockChainClient{},
		db:        &db.MockDB{},
		sink:      &mocks.MockIntentSink{},
		publisher: &mocks.RecordingPublisher{},
	}

	listener, err := NewHookListenerService(
		f.client,
		f.db,
		testChain("http://localhost:8545"),
		f.sink,
		f.publisher,
		logging.NewTesting(t),
	)
	require.NoError(t, err)

	f.listener = listener
	t.Cleanup(func() { _ = listener.Shutdown(time.Second) })

	return f
}

// intentCreatedLog builds an IntentCreated log for 2.5 USDC on the Navi USDC strategy
func intentCreatedLog(t *testing.T, id common.Hash, block uint64, txHash common.Hash) types.Log {
	t.Helper()

	event := evm.HookABI.Events[evm.EventIntentCreated]

	data, err := event.Inputs.NonIndexed().Pack(
		common.HexToHash("0xbeef"),
		testUSDC,
		big.NewInt(2_500_000),
		big.NewInt(2_500_000),
		uint8(models.StrategyNaviUSDC),
		big.NewInt(1_700_000_000),
	)
	require.NoError(t, err)

	return types.Log{
		Address:     testHook,
		Topics:      []common.Hash{event.ID, id, common.BytesToHash(testUser.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
	}
}

func bridgeInitiatedLog(t *testing.T, id, lifiID common.Hash, block uint64, txHash common.Hash) types.Log {
	t.Helper()

	event := evm.HookABI.Events[evm.EventIntentBridgeInitiated]

	data, err := event.Inputs.NonIndexed().Pack(lifiID)
	require.NoError(t, err)

	return types.Log{
		Address:     testHook,
		Topics:      []common.Hash{event.ID, id},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
		Index:       1,
	}
}

func strategyPtr(s models.YieldStrategy) *models.YieldStrategy {
	return &s
}
