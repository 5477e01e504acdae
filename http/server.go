package http

import (
	"context"
	"net/http"
	"time"

	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// in-flight requests get this long to finish
const shutdownTimeout = 10 * time.Second

// StartAsync serves srv in the background and returns the func that drains it.
// A listener that fails to come up is fatal.
func StartAsync(srv *http.Server, logger zerolog.Logger) (shutdownFunc func(context.Context) error) {
	logger = logger.With().Str(logging.FieldModule, "http").Str("addr", srv.Addr).Logger()

	go func() {
		logger.Info().Msg("Serving API")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}()

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "failed to drain http server")
		}

		logger.Info().Msg("HTTP server drained")

		return nil
	}
}
