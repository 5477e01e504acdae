package lifi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, apiKey string, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(server.URL, apiKey, logging.NewTesting(t), WithRateLimit(1000, 10))
}

func TestGetQuote(t *testing.T) {
	t.Parallel()

	t.Run("sends query and api key", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		slippage := 0.005
		client := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()

			assert.Equal(t, "/quote", r.URL.Path)
			assert.Equal(t, "BAS", q.Get("fromChain"))
			assert.Equal(t, "ARB", q.Get("toChain"))
			assert.Equal(t, "1000000", q.Get("fromAmount"))
			assert.Equal(t, "0.005", q.Get("slippage"))
			assert.Equal(t, "secret", r.Header.Get(apiKeyHeader))

			_, _ = w.Write([]byte(`{
				"id": "q1",
				"type": "lifi",
				"tool": "stargate",
				"estimate": {"fromAmount": "1000000", "toAmount": "998000", "executionDuration": 60}
			}`))
		})

		// ACT
		quote, err := client.GetQuote(context.Background(), QuoteRequest{
			FromChain:   "BAS",
			ToChain:     "ARB",
			FromToken:   "USDC",
			ToToken:     "USDC",
			FromAmount:  "1000000",
			FromAddress: "0x1",
			ToAddress:   "0x2",
			Slippage:    &slippage,
		})

		// ASSERT
		require.NoError(t, err)
		assert.Equal(t, "stargate", quote.Tool)
		assert.Equal(t, "998000", quote.Estimate.ToAmount)
		assert.Equal(t, uint64(60), quote.Estimate.ExecutionDuration)
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get(apiKeyHeader))
			assert.False(t, r.URL.Query().Has("slippage"))

			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"invalid token"}`))
		})

		// ACT
		_, err := client.GetQuote(context.Background(), QuoteRequest{FromChain: "BAS"})

		// ASSERT
		var apiErr *rest.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Contains(t, apiErr.Body, "invalid token")
	})
}

func TestGetRoutes(t *testing.T) {
	t.Parallel()

	// ARRANGE
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/routes", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		options := body["options"].(map[string]any)
		assert.Equal(t, 0.03, options["slippage"])
		assert.Equal(t, "RECOMMENDED", options["order"])
		assert.Equal(t, "8453", body["fromChainId"])

		_, _ = w.Write([]byte(`{"routes":[{"id":"r1"},{"id":"r2"}]}`))
	})

	// ACT
	routes, err := client.GetRoutes(context.Background(), "8453", "42161", "0xa", "0xb", "100")

	// ASSERT
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "r2", routes[1].ID)
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	// ARRANGE
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xabc", r.URL.Query().Get("txHash"))
		assert.Equal(t, "BAS", r.URL.Query().Get("fromChain"))

		_, _ = w.Write([]byte(`{
			"transactionId": "t1",
			"sending": {"txHash": "0xabc", "chainId": 8453, "amount": "1"},
			"status": "DONE"
		}`))
	})

	// ACT
	status, err := client.GetStatus(context.Background(), "0xabc", "BAS")

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "DONE", status.Status)
	assert.Nil(t, status.Receiving)
	assert.Equal(t, uint64(8453), status.Sending.ChainID)
}

func TestGetChainsAndTokens(t *testing.T) {
	t.Parallel()

	// ARRANGE
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chains":
			_, _ = w.Write([]byte(`{"chains":[{"id":8453,"key":"bas","name":"Base","chainType":"EVM"}]}`))
		case "/tokens":
			assert.Equal(t, "8453,42161", r.URL.Query().Get("chains"))
			_, _ = w.Write([]byte(`{"tokens":{
				"42161":[{"symbol":"USDC","chainId":42161}],
				"8453":[{"symbol":"USDC","chainId":8453},{"symbol":"WETH","chainId":8453}]
			}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// ACT
	chains, errChains := client.GetChains(context.Background())
	tokens, errTokens := client.GetTokens(context.Background(), "8453", "42161")

	// ASSERT
	require.NoError(t, errChains)
	require.NoError(t, errTokens)

	require.Len(t, chains, 1)
	assert.Equal(t, "bas", chains[0].Key)

	require.Len(t, tokens, 3)
	assert.Equal(t, uint64(42161), tokens[0].ChainID)
	assert.Equal(t, "WETH", tokens[2].Symbol)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	// ARRANGE
	client := New("http://127.0.0.1:1", "", logging.NewTesting(t), WithRateLimit(0.0001, 1))
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// ACT
	_, err := client.GetChains(ctx)

	// ASSERT
	assert.ErrorContains(t, err, "rate limiter")
}
