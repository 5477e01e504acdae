package main

import (
	"testing"

	"github.com/naisu-labs/naisu/clients/wormhole"
	"github.com/naisu-labs/naisu/config"
	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/services/mocks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListeners(t *testing.T) {
	const hook = "0x00000000000000000000000000000000000000aa"

	cfg := &config.Config{
		ChainConfigs: map[uint64]*config.ChainConfig{
			8453:  {ChainID: 8453, Chain: models.EvmChainBase, RPCURL: "wss://base.example", HookAddress: hook},
			84532: {ChainID: 84532, Chain: models.EvmChainBaseSepolia, RPCURL: "https://sepolia.base.org", HookAddress: hook},
		},
	}

	t.Run("one listener per resolved chain", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		resolver := &mocks.MockClientResolver{}
		resolver.On("ChainIDs").Return([]uint64{84532, 8453})
		resolver.On("GetClient", uint64(8453)).Return(&mocks.MockChainClient{}, nil)
		resolver.On("GetClient", uint64(84532)).Return(&mocks.MockChainClient{}, nil)

		// ACT
		listeners, err := createListeners(resolver, &db.MockDB{}, cfg, &mocks.MockIntentSink{}, &mocks.RecordingPublisher{}, logging.NewTesting(t))

		// ASSERT
		require.NoError(t, err)
		require.Len(t, listeners, 2)
		assert.Equal(t, uint64(8453), listeners[0].ChainID())
		assert.Equal(t, uint64(84532), listeners[1].ChainID())
		resolver.AssertExpectations(t)
	})

	t.Run("resolved chain without config", func(t *testing.T) {
		t.Parallel()

		resolver := &mocks.MockClientResolver{}
		resolver.On("ChainIDs").Return([]uint64{1})

		_, err := createListeners(resolver, &db.MockDB{}, cfg, &mocks.MockIntentSink{}, nil, logging.NewTesting(t))

		assert.ErrorContains(t, err, "no configuration for chain 1")
	})

	t.Run("client lookup fails", func(t *testing.T) {
		t.Parallel()

		resolver := &mocks.MockClientResolver{}
		resolver.On("ChainIDs").Return([]uint64{8453})
		resolver.On("GetClient", uint64(8453)).Return(nil, errors.New("no client for chain 8453"))

		_, err := createListeners(resolver, &db.MockDB{}, cfg, &mocks.MockIntentSink{}, nil, logging.NewTesting(t))

		assert.Error(t, err)
	})
}

func TestVAAVerifier(t *testing.T) {
	t.Parallel()

	t.Run("no guardians skips verification", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		cfg := config.WormholeConfig{APIURL: "https://api.wormholescan.io"}
		client, err := wormhole.New(cfg.APIURL, cfg.Guardians, logging.NewTesting(t))
		require.NoError(t, err)

		// ACT
		verifier := vaaVerifier(cfg, client, logging.NewTesting(t))

		// ASSERT
		assert.Nil(t, verifier)
	})

	t.Run("guardian set verifies", func(t *testing.T) {
		t.Parallel()

		cfg := config.WormholeConfig{
			APIURL:    "https://api.wormholescan.io",
			Guardians: []string{"0x58CC3AE5C097b213cE3c81979e1B9f9570746AA5"},
		}
		client, err := wormhole.New(cfg.APIURL, cfg.Guardians, logging.NewTesting(t))
		require.NoError(t, err)

		verifier := vaaVerifier(cfg, client, logging.NewTesting(t))

		assert.Same(t, client, verifier)
	})
}
