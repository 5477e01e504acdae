package services

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func rangeQuery(from, to uint64) interface{} {
	return mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock != nil && q.ToBlock != nil &&
			q.FromBlock.Uint64() == from && q.ToBlock.Uint64() == to
	})
}

func TestProcessRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("splits into chunks and persists each", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		f := newListenerFixture(t)

		f.client.On("FilterLogs", mock.Anything, rangeQuery(1, 10)).Return([]types.Log{}, nil).Once()
		f.client.On("FilterLogs", mock.Anything, rangeQuery(11, 20)).Return([]types.Log{}, nil).Once()
		f.client.On("FilterLogs", mock.Anything, rangeQuery(21, 25)).Return([]types.Log{}, nil).Once()
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, mock.Anything).Return(nil)

		// ACT
		done, err := ProcessRange(ctx, f.listener, 1, 25, 10)

		// ASSERT
		require.NoError(t, err)
		assert.Equal(t, uint64(25), done)
		f.client.AssertExpectations(t)

		for _, block := range []uint64{10, 20, 25} {
			f.db.AssertCalled(t, "UpdateLastProcessedBlock", mock.Anything, testChainID, block)
		}
	})

	t.Run("stops at the failing chunk", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		f := newListenerFixture(t)

		f.client.On("FilterLogs", mock.Anything, rangeQuery(1, 10)).Return([]types.Log{}, nil).Once()
		f.client.On("FilterLogs", mock.Anything, rangeQuery(11, 20)).Return(nil, errors.New("range too large")).Once()
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(10)).Return(nil)

		// ACT
		done, err := ProcessRange(ctx, f.listener, 1, 30, 10)

		// ASSERT
		require.Error(t, err)
		assert.Equal(t, uint64(10), done)
		f.db.AssertNotCalled(t, "UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(20))
	})
}

func TestCatchupService_Catchup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("first run starts at head", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		f := newListenerFixture(t)
		catchup := NewCatchupService(f.db, logging.NewTesting(t))

		f.client.On("BlockNumber", mock.Anything).Return(uint64(500), nil)
		f.db.On("GetLastProcessedBlock", mock.Anything, testChainID).Return(uint64(0), nil)
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(500)).Return(nil).Once()

		// ACT
		err := catchup.Catchup(ctx, f.listener)

		// ASSERT
		require.NoError(t, err)
		assert.Equal(t, uint64(500), f.listener.Cursor())
		f.client.AssertNotCalled(t, "FilterLogs", mock.Anything, mock.Anything)
		f.db.AssertExpectations(t)
	})

	t.Run("replays missed blocks", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		f := newListenerFixture(t)
		catchup := NewCatchupService(f.db, logging.NewTesting(t))

		missed := intentCreatedLog(t, common.HexToHash("0x03"), 205, common.HexToHash("0x33"))

		f.client.On("BlockNumber", mock.Anything).Return(uint64(210), nil)
		f.client.On("FilterLogs", mock.Anything, rangeQuery(201, 210)).Return([]types.Log{missed}, nil).Once()
		f.db.On("GetLastProcessedBlock", mock.Anything, testChainID).Return(uint64(200), nil)
		f.db.On("CreateIntent", mock.Anything, mock.Anything).Return(nil).Once()
		f.db.On("UpdateLastProcessedBlock", mock.Anything, testChainID, mock.Anything).Return(nil)
		f.sink.On("OnIntentCreated", mock.Anything, mock.Anything).Return(nil).Once()

		// ACT
		err := catchup.Catchup(ctx, f.listener)

		// ASSERT
		require.NoError(t, err)
		assert.Equal(t, uint64(210), f.listener.Cursor())
		f.sink.AssertExpectations(t)
		f.db.AssertCalled(t, "UpdateLastProcessedBlock", mock.Anything, testChainID, uint64(210))
	})

	t.Run("up to date", func(t *testing.T) {
		t.Parallel()

		f := newListenerFixture(t)
		catchup := NewCatchupService(f.db, logging.NewTesting(t))

		f.client.On("BlockNumber", mock.Anything).Return(uint64(300), nil)
		f.db.On("GetLastProcessedBlock", mock.Anything, testChainID).Return(uint64(300), nil)

		require.NoError(t, catchup.Catchup(ctx, f.listener))
		assert.Equal(t, uint64(300), f.listener.Cursor())
		f.client.AssertNotCalled(t, "FilterLogs", mock.Anything, mock.Anything)
	})

	t.Run("head unavailable", func(t *testing.T) {
		t.Parallel()

		f := newListenerFixture(t)
		catchup := NewCatchupService(f.db, logging.NewTesting(t))

		f.client.On("BlockNumber", mock.Anything).Return(uint64(0), errors.New("dial tcp: refused"))

		err := catchup.Run(ctx, []*HookListenerService{f.listener})
		assert.ErrorContains(t, err, "dial tcp")
	})
}
