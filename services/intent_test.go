package services

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/services/mocks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewHookListenerService(t *testing.T) {
	t.Parallel()

	t.Run("requires a hook", func(t *testing.T) {
		t.Parallel()

		chain := testChain("http://localhost:8545")
		chain.HookAddress = ""

		_, err := NewHookListenerService(&mocks.MockChainClient{}, &db.MockDB{}, chain, nil, nil, logging.NewTesting(t))
		assert.Error(t, err)
	})

	t.Run("transport mode follows the rpc url", func(t *testing.T) {
		t.Parallel()

		for url, polling := range map[string]bool{
			"http://localhost:8545": true,
			"wss://base.example":    false,
		} {
			listener, err := NewHookListenerService(
				&mocks.MockChainClient{}, &db.MockDB{}, testChain(url), nil, nil, logging.NewTesting(t),
			)
			require.NoError(t, err)

			assert.Equal(t, polling, listener.GetMetrics().Polling, url)
			assert.Equal(t, testChainID, listener.ChainID())
		}
	})
}

func TestHookListenerService_ProcessLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	intentID := common.HexToHash("0x01")

	t.Run("intent created is stored and handed to the sink once", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		f := newListenerFixture(t)
		log := intentCreatedLog(t, intentID, 100, common.HexToHash("0xdead"))

		f.db.On("CreateIntent", mock.Anything, mock.MatchedBy(func(intent *models.Intent) bool {
			return intent.ID == intentID.Hex() &&
				intent.Status == models.IntentStatusSwapCompleted &&
				intent.USDCAmount == "2.5" &&
				*intent.Strategy == models.StrategyNaviUSDC
		})).Return(nil).Once()
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(100)).Return(nil)
		f.sink.On("OnIntentCreated", mock.Anything, mock.Anything).Return(nil).Once()

		// ACT
		require.NoError(t, f.listener.ProcessLog(ctx, log))
		require.NoError(t, f.listener.ProcessLog(ctx, log))

		// ASSERT
		f.db.AssertNumberOfCalls(t, "CreateIntent", 1)
		f.sink.AssertExpectations(t)

		assert.Equal(t, []models.IntentStatus{models.IntentStatusSwapCompleted}, f.publisher.Statuses(intentID.Hex()))

		metrics := f.listener.GetMetrics()
		assert.Equal(t, int64(1), metrics.EventsProcessed)
		assert.Equal(t, int64(1), metrics.EventsSkipped)
	})

	t.Run("stored intent is skipped", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		f := newListenerFixture(t)
		log := intentCreatedLog(t, intentID, 100, common.HexToHash("0xbeef"))

		f.db.On("CreateIntent", mock.Anything, mock.Anything).Return(db.ErrIntentExists)
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(100)).Return(nil)

		// ACT
		err := f.listener.ProcessLog(ctx, log)

		// ASSERT
		require.NoError(t, err)
		f.sink.AssertNotCalled(t, "OnIntentCreated", mock.Anything, mock.Anything)
		assert.Empty(t, f.publisher.Updates())
	})

	t.Run("sink failure does not fail the log", func(t *testing.T) {
		t.Parallel()

		f := newListenerFixture(t)
		log := intentCreatedLog(t, intentID, 7, common.HexToHash("0xcafe"))

		f.db.On("CreateIntent", mock.Anything, mock.Anything).Return(nil)
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(7)).Return(nil)
		f.sink.On("OnIntentCreated", mock.Anything, mock.Anything).Return(errors.New("db down"))

		assert.NoError(t, f.listener.ProcessLog(ctx, log))
	})

	t.Run("storage failure is retried on the next delivery", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		f := newListenerFixture(t)
		log := intentCreatedLog(t, intentID, 8, common.HexToHash("0xf00d"))

		f.db.On("CreateIntent", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()
		f.db.On("CreateIntent", mock.Anything, mock.Anything).Return(nil).Once()
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(8)).Return(nil)
		f.sink.On("OnIntentCreated", mock.Anything, mock.Anything).Return(nil)

		// ACT
		firstErr := f.listener.ProcessLog(ctx, log)
		secondErr := f.listener.ProcessLog(ctx, log)

		// ASSERT
		assert.Error(t, firstErr)
		assert.NoError(t, secondErr)
		f.db.AssertNumberOfCalls(t, "CreateIntent", 2)
		assert.Equal(t, int64(1), f.listener.GetMetrics().ProcessingErrors)
	})

	t.Run("bridge initiated moves the intent to bridging", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		f := newListenerFixture(t)
		lifiID := common.HexToHash("0x1f1")

		stored := &models.Intent{
			ID:        intentID.Hex(),
			Direction: models.DirectionEvmToSui,
			Status:    models.IntentStatusSwapCompleted,
		}

		f.db.On("GetIntent", mock.Anything, intentID.Hex()).Return(stored, nil)
		f.db.On("UpdateIntent", mock.Anything, mock.MatchedBy(func(intent *models.Intent) bool {
			return intent.Status == models.IntentStatusBridging && intent.BridgeTxHash == lifiID.Hex()
		})).Return(nil).Once()
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(120)).Return(nil)

		// ACT
		err := f.listener.ProcessLog(ctx, bridgeInitiatedLog(t, intentID, lifiID, 120, common.HexToHash("0xabc")))

		// ASSERT
		require.NoError(t, err)
		f.db.AssertExpectations(t)
		assert.Equal(t, []models.IntentStatus{models.IntentStatusBridging}, f.publisher.Statuses(intentID.Hex()))
	})

	t.Run("bridge initiated past bridging only records the tx", func(t *testing.T) {
		t.Parallel()

		f := newListenerFixture(t)
		lifiID := common.HexToHash("0x1f2")

		stored := &models.Intent{
			ID:        intentID.Hex(),
			Direction: models.DirectionEvmToSui,
			Status:    models.IntentStatusDeposited,
		}

		f.db.On("GetIntent", mock.Anything, intentID.Hex()).Return(stored, nil)
		f.db.On("UpdateIntent", mock.Anything, mock.MatchedBy(func(intent *models.Intent) bool {
			return intent.Status == models.IntentStatusDeposited && intent.BridgeTxHash == lifiID.Hex()
		})).Return(nil).Once()
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(121)).Return(nil)

		require.NoError(t, f.listener.ProcessLog(ctx, bridgeInitiatedLog(t, intentID, lifiID, 121, common.HexToHash("0xabd"))))
		f.db.AssertExpectations(t)
	})

	t.Run("removed and foreign logs are ignored", func(t *testing.T) {
		t.Parallel()

		f := newListenerFixture(t)

		removed := intentCreatedLog(t, intentID, 9, common.HexToHash("0x99"))
		removed.Removed = true

		foreign := removed
		foreign.Removed = false
		foreign.Topics = []common.Hash{common.HexToHash("0x1234")}

		require.NoError(t, f.listener.ProcessLog(ctx, removed))
		require.NoError(t, f.listener.ProcessLog(ctx, foreign))

		f.db.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
	})
}

func TestHookListenerService_PollOnce(t *testing.T) {
	t.Parallel()

	// ARRANGE
	f := newListenerFixture(t)
	f.listener.SetCursor(99)

	log := intentCreatedLog(t, common.HexToHash("0x02"), 101, common.HexToHash("0x10"))

	f.client.On("BlockNumber", mock.Anything).Return(uint64(105), nil)
	f.client.On("FilterLogs", mock.Anything, mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock.Uint64() == 100 && q.ToBlock.Uint64() == 105
	})).Return([]types.Log{log}, nil).Once()
	f.db.On("CreateIntent", mock.Anything, mock.Anything).Return(nil)
	f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, mock.Anything).Return(nil)
	f.sink.On("OnIntentCreated", mock.Anything, mock.Anything).Return(nil)

	// ACT
	err := f.listener.PollOnce(context.Background())

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, uint64(105), f.listener.Cursor())
	f.db.AssertCalled(t, "UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(105))
	f.db.AssertNumberOfCalls(t, "CreateIntent", 1)
}

func TestHookListenerService_GoroutineTracking(t *testing.T) {
	t.Parallel()

	// ARRANGE
	f := newListenerFixture(t)
	f.client.On("BlockNumber", mock.Anything).Return(uint64(10), nil)
	f.client.On("FilterLogs", mock.Anything, mock.Anything).Return(nil, nil)
	f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, mock.Anything).Return(nil)

	// ACT
	require.NoError(t, f.listener.StartListening(context.Background()))

	// ASSERT
	assert.Equal(t, int32(2), f.listener.ActiveGoroutines())
	assert.Equal(t, uint64(10), f.listener.Cursor())
	assert.True(t, f.listener.IsHealthy(), "healthy during the grace period")

	// starting twice is a no-op
	require.NoError(t, f.listener.StartListening(context.Background()))
	assert.Equal(t, int32(2), f.listener.ActiveGoroutines())

	require.NoError(t, f.listener.Shutdown(5*time.Second))
	assert.Equal(t, int32(0), f.listener.ActiveGoroutines())
	assert.True(t, f.listener.IsShutdown())

	assert.Error(t, f.listener.StartListening(context.Background()))
}
