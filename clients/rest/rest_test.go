package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"complete"}`))
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			http.Error(w, "not here", http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, time.Second)

	t.Run("decodes a 2xx body", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		var out struct {
			Status string `json:"status"`
		}

		// ACT
		err := Do(context.Background(), "test", client.Get().AddPath("/ok"), &out)

		// ASSERT
		require.NoError(t, err)
		assert.Equal(t, "complete", out.Status)
	})

	t.Run("non-2xx is an APIError", func(t *testing.T) {
		t.Parallel()

		err := Do(context.Background(), "test", client.Get().AddPath("/missing"), nil)

		require.Error(t, err)
		assert.True(t, IsNotFound(err))

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "test", apiErr.Service)
	})

	t.Run("cancelled context aborts the request", func(t *testing.T) {
		t.Parallel()

		// ARRANGE
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()

		// ACT
		err := Do(ctx, "test", client.Get().AddPath("/slow"), nil)

		// ASSERT
		require.Error(t, err)
		assert.Less(t, time.Since(start), 900*time.Millisecond)
	})
}
