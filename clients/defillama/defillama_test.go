package defillama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolsBody = `{
	"status": "success",
	"data": [
		{"pool": "a", "chain": "Sui", "project": "scallop-lend", "symbol": "USDC", "tvlUsd": 1000, "apy": 8.1},
		{"pool": "b", "chain": "Sui", "project": "scallop-lend", "symbol": "USDC", "tvlUsd": 5000, "apy": 9.25},
		{"pool": "c", "chain": "Sui", "project": "navi-lending", "symbol": "USDC.e", "tvlUsd": 3000, "apy": 6.4},
		{"pool": "d", "chain": "Sui", "project": "navi-lending", "symbol": "SUI", "tvlUsd": 7000, "apy": 3.3, "apyBase": 2.1},
		{"pool": "e", "chain": "Ethereum", "project": "scallop-lend", "symbol": "USDC", "tvlUsd": 99999, "apy": 1}
	]
}`

func TestClient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pools" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(poolsBody))
	}))
	t.Cleanup(server.Close)

	client := New(server.URL, logging.NewTesting(t))
	ctx := context.Background()

	t.Run("pools", func(t *testing.T) {
		pools, err := client.Pools(ctx)

		require.NoError(t, err)
		require.Len(t, pools, 5)
		assert.Equal(t, "2.1", pools[3].APYBase.String())
		assert.Nil(t, pools[0].APYBase)
	})

	t.Run("largest matching pool wins", func(t *testing.T) {
		pool, err := client.FindPool(ctx, ProjectScallop, ChainSui, "USDC")

		require.NoError(t, err)
		assert.Equal(t, "b", pool.Pool)
		assert.Equal(t, "9.25", pool.APY.String())
	})

	t.Run("bridged usdc counts as usdc", func(t *testing.T) {
		pool, err := client.FindPool(ctx, ProjectNavi, ChainSui, "usdc")

		require.NoError(t, err)
		assert.Equal(t, "c", pool.Pool)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.FindPool(ctx, ProjectScallop, ChainSui, "SUI")

		assert.ErrorIs(t, err, ErrPoolNotFound)
	})
}

func TestClientError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	t.Cleanup(server.Close)

	_, err := New(server.URL, logging.NewTesting(t)).Pools(context.Background())

	var apiErr *rest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}
