package httpjson

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/naisu-labs/naisu/clients/cctp"
	"github.com/naisu-labs/naisu/clients/lifi"
	"github.com/naisu-labs/naisu/clients/wormhole"
	"github.com/naisu-labs/naisu/db"
	web "github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/http/timeout"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/services"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type handler struct {
	*gin.Engine

	deps   Dependencies
	logger zerolog.Logger
}

type Config struct {
	Dependencies

	Addr           string
	AllowedOrigins string
	LogRequests    bool
	RateLimitRPS   float64
	RateLimitBurst int

	Logger zerolog.Logger
}

type Dependencies struct {
	Database    db.Database
	Queue       services.Enqueuer
	Auctions    AuctionService
	Strategies  StrategyService
	Attestation AttestationService
	Lifi        LifiService
	VAAs        VAAService
	ChainStatus ChainStatusService
	Stream      StreamService
	Metrics     *services.MetricsService
}

// AuctionService runs solver competitions for intents
type AuctionService interface {
	OpenSealedBid(ctx context.Context, intent *models.Intent) (*models.Auction, error)
	OpenDutch(ctx context.Context, intent *models.Intent) (*models.Auction, error)
	CurrentPrice(auction *models.Auction) (decimal.Decimal, bool)
	SubmitBid(ctx context.Context, auctionID string, req models.SubmitBidRequest) (*models.Bid, error)
	Fill(ctx context.Context, auctionID string, req models.FillRequest) (*models.Bid, error)
}

type StrategyService interface {
	List(ctx context.Context) []models.StrategyInfo
	Get(ctx context.Context, strategy models.YieldStrategy) models.StrategyInfo
	Best(ctx context.Context) models.StrategyInfo
}

type AttestationService interface {
	PollAttestation(ctx context.Context, nonce string, attempts uint32, interval time.Duration) (*cctp.Attestation, error)
}

type LifiService interface {
	GetQuote(ctx context.Context, req lifi.QuoteRequest) (*lifi.Quote, error)
	GetStatus(ctx context.Context, txHash, fromChain string) (*lifi.BridgeStatus, error)
}

type VAAService interface {
	GetVAA(ctx context.Context, chainID uint16, emitter string, sequence uint64) ([]byte, error)
	ParseAndVerify(encoded string) (*wormhole.VAA, error)
}

type ChainStatusService interface {
	Status(ctx context.Context) []models.ChainStatus
}

// StreamService upgrades a request to a websocket subscription of intent updates
type StreamService interface {
	ServeWS(w http.ResponseWriter, r *http.Request, intentID string) error
}

var (
	_ AuctionService     = (*services.AuctionService)(nil)
	_ StrategyService    = (*services.StrategyService)(nil)
	_ AttestationService = (*cctp.Client)(nil)
	_ LifiService        = (*lifi.Client)(nil)
	_ VAAService         = (*wormhole.Client)(nil)
	_ ChainStatusService = (*services.ChainStatusService)(nil)
	_ StreamService      = (*services.Notifier)(nil)
)

const (
	requestTimeout = 10 * time.Second
	rwTimeout      = 15 * time.Second
	maxPageSize    = 100
)

var (
	ErrNotFound      = errors.New("not found")
	ErrParamRequired = errors.New("param required")
)

func New(cfg Config) *http.Server {
	return &http.Server{
		Addr:    cfg.Addr,
		Handler: newHandler(cfg, gin.New()),

		// Time to read the request headers/body
		ReadTimeout: rwTimeout,

		// Time to write the response. The websocket stream clears its own deadlines.
		WriteTimeout: rwTimeout,

		// Time to keep connections alive
		IdleTimeout: 60 * time.Second,

		// Max header bytes (1MB)
		MaxHeaderBytes: 1024 * 1024,
	}
}

func newHandler(cfg Config, router *gin.Engine) *handler {
	h := &handler{
		Engine: router,
		deps:   cfg.Dependencies,
		logger: cfg.Logger.With().Str(logging.FieldModule, "api").Logger(),
	}

	logLevel := zerolog.DebugLevel
	if cfg.LogRequests {
		logLevel = zerolog.InfoLevel
	}

	h.Use(
		gin.Recovery(),
		web.Zerolog(cfg.Logger, logLevel),
		web.CORS(cfg.AllowedOrigins),
		web.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Logger),
	)

	h.setupAPIRoutes(cfg.Logger)
	h.setupObservabilityRoutes()

	return h
}

func (h *handler) setupAPIRoutes(logger zerolog.Logger) {
	v1 := h.Group("/api/v1")

	// the timeout middleware buffers the response, so the stream stays outside of it
	v1.GET("/stream", h.stream)

	api := v1.Group("", timeout.New(requestTimeout, logger))

	h.setupIntentRoutes(api)
	h.setupBridgeRoutes(api)
	h.setupChainRoutes(api)
	h.setupStrategyRoutes(api)
	h.setupQuoteRoutes(api)
	h.setupAuctionRoutes(api)
	h.setupAIRoutes(api)
}

func (h *handler) setupObservabilityRoutes() {
	h.GET("/health", h.getHealthCheck)

	if h.deps.Metrics != nil {
		h.GET("/metrics", gin.WrapH(h.deps.Metrics.GetHandler()))

		// "Metrics summary endpoint for debugging" (c)
		h.GET("/api/v1/metrics", h.getMetricsSummary)
	}
}

func (h *handler) getHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) getMetricsSummary(c *gin.Context) {
	summary := h.deps.Metrics.GetMetricsSummary()
	c.JSON(http.StatusOK, summary)
}

func (h *handler) stream(c *gin.Context) {
	intentID := c.Query("intent_id")

	// ServeWS writes its own error response when the upgrade fails
	if err := h.deps.Stream.ServeWS(c.Writer, c.Request, intentID); err != nil {
		h.logger.Debug().Err(err).Str(logging.FieldIntent, intentID).Msg("Stream upgrade failed")
	}
}

type paginationParams struct {
	Page     int
	PageSize int
}

var errPageSize = errors.Errorf("invalid page_size parameter (must be between 1 and %d)", maxPageSize)

func resolvePagination(c *gin.Context) (paginationParams, error) {
	var (
		pageRaw     = c.DefaultQuery("page", "1")
		pageSizeRaw = c.DefaultQuery("page_size", "20")
	)

	page, err := strconv.Atoi(pageRaw)
	if err != nil || page < 1 {
		return paginationParams{}, errors.New("invalid page parameter")
	}

	pageSize, err := strconv.Atoi(pageSizeRaw)
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		return paginationParams{}, errPageSize
	}

	return paginationParams{
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// respondErr maps domain errors to HTTP statuses
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrIntentNotFound),
		errors.Is(err, models.ErrAuctionNotFound),
		errors.Is(err, wormhole.ErrVAANotFound),
		errors.Is(err, ErrNotFound):
		web.ErrNotFound(c, err)
	case errors.Is(err, models.ErrAuctionClosed),
		errors.Is(err, models.ErrAlreadyFilled),
		errors.Is(err, db.ErrIntentExists):
		web.ErrConflict(c, err)
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrBidTooLow),
		errors.Is(err, models.ErrStrategyRequired),
		errors.Is(err, models.ErrUnsupportedChain),
		errors.Is(err, wormhole.ErrInvalidVAA),
		errors.Is(err, wormhole.ErrNoQuorum),
		errors.Is(err, wormhole.ErrUnsortedSigners),
		models.IsInvalidState(err):
		web.ErrBadRequest(c, err)
	default:
		web.ErrInternalServerError(c, err)
	}
}
