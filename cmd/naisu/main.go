package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/naisu-labs/naisu/clients/cctp"
	"github.com/naisu-labs/naisu/clients/defillama"
	"github.com/naisu-labs/naisu/clients/evm"
	"github.com/naisu-labs/naisu/clients/lifi"
	"github.com/naisu-labs/naisu/clients/sui"
	"github.com/naisu-labs/naisu/clients/wormhole"
	"github.com/naisu-labs/naisu/cmd/naisu/httpjson"
	"github.com/naisu-labs/naisu/config"
	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/services"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	flags := parseFlags()
	log := logging.New(os.Stdout, flags.LogLevel, flags.LogJSON)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	log.Info().Msg("Initializing database connection")
	database, err := db.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Msg("Database connection established successfully")

	// Initialize EVM clients for every chain with a hook
	clients, err := evm.ResolveClientsFromConfig(ctx, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize EVM clients")
	}

	// External APIs
	var (
		cctpClient = cctp.New(cfg.CCTP.APIURL, log)
		lifiClient = lifi.New(cfg.Lifi.APIURL, cfg.Lifi.APIKey, log)
		yields     = defillama.New(cfg.DefiLlama.APIURL, log)
	)

	wormholeClient, err := wormhole.New(cfg.Wormhole.APIURL, cfg.Wormhole.Guardians, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Wormhole client")
	}

	strategies, err := services.NewStrategyService(yields, cfg.DefiLlama.CacheTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create strategy service")
	}

	// Create metrics service
	metricsService := services.NewMetricsService(log)
	notifier := services.NewNotifier(log)

	orchestrator := services.NewOrchestrator(
		database,
		cctpClient,
		notifier,
		metricsService,
		services.OrchestratorConfig{
			Workers:            cfg.OrchestratorWorkers,
			AttestationPolling: cfg.CCTP.AttestationPolling,
			PollAttempts:       cfg.CCTP.PollAttempts,
			PollInterval:       cfg.CCTP.PollInterval,
			Packages: sui.Packages{
				Scallop: cfg.Sui.ScallopPackageID,
				Navi:    cfg.Sui.NaviPackageID,
				Swap:    cfg.Sui.SwapPackageID,
			},
		},
		log,
	)

	auctions := services.NewAuctionService(
		database,
		orchestrator,
		notifier,
		vaaVerifier(cfg.Wormhole, wormholeClient, log),
		metricsService,
		services.AuctionConfig{
			BidWindow:       cfg.Auction.BidWindow,
			DutchDuration:   cfg.Auction.DutchDuration,
			DutchPremiumBps: cfg.Auction.DutchPremiumBps,
		},
		log,
	)

	chainStatus := services.NewChainStatusService(log)

	// Create hook listeners for all chains
	listeners, err := createListeners(services.NewClientResolverFromEthClients(clients), database, cfg, auctions, notifier, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create hook listeners")
	}

	for _, listener := range listeners {
		listener.SetObserver(metricsService)
		metricsService.RegisterListener(listener.ChainID(), listener)
		chainStatus.AddEvmChain(listener.ChainID(), clients[listener.ChainID()])
	}

	suiClient, err := sui.Dial(ctx, cfg.Sui.RPCURL, log)
	if err != nil {
		log.Warn().Err(err).Str("rpc_url", cfg.Sui.RPCURL).Msg("Sui RPC unavailable, chain status will not report Sui")
	} else {
		defer suiClient.Close()
		chainStatus.AddProbe("sui_"+string(cfg.Sui.Network), suiClient.LatestCheckpoint)
	}

	// Start the metrics updater
	metricsService.StartMetricsUpdater(ctx)
	log.Info().Msg("Started Prometheus metrics service")

	orchestrator.Start(ctx)
	auctions.StartSettler(ctx)

	// Pick up intents that were in flight when the service last stopped
	if _, err := orchestrator.Resume(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to resume in-flight intents")
	}

	// Replay missed hook events before going live
	if err := services.NewCatchupService(database, log).Run(ctx, listeners); err != nil {
		log.Error().Err(err).Msg("Hook event catch-up failed, listening from the stored cursor")
	}

	for _, listener := range listeners {
		if err := listener.StartListening(ctx); err != nil {
			log.Error().Err(err).Uint64(logging.FieldChain, listener.ChainID()).Msg("Failed to start hook listener")
		}
	}

	// Create and start the server
	server := httpjson.New(httpjson.Config{
		Addr:           fmt.Sprintf(":%s", cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
		LogRequests:    true,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		Dependencies: httpjson.Dependencies{
			Database:    database,
			Queue:       orchestrator,
			Auctions:    auctions,
			Strategies:  strategies,
			Attestation: cctpClient,
			Lifi:        lifiClient,
			VAAs:        wormholeClient,
			ChainStatus: chainStatus,
			Stream:      notifier,
			Metrics:     metricsService,
		},
	})

	serverShutdown := http.StartAsync(server, log)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Shutdown signal received, cleaning up services...")

	var shutdownErrors []error

	// Stop taking requests before the pipeline goes away
	if err := serverShutdown(ctx); err != nil {
		shutdownErrors = append(shutdownErrors, err)
	}

	for _, listener := range listeners {
		log.Info().Uint64(logging.FieldChain, listener.ChainID()).Msg("Shutting down hook listener")
		if err := listener.Shutdown(shutdownTimeout); err != nil {
			err = errors.Wrap(err, "failed to shutdown hook listener")
			shutdownErrors = append(shutdownErrors, err)
		}
	}

	log.Info().Msg("Shutting down auction settler...")
	if err := auctions.Shutdown(shutdownTimeout); err != nil {
		shutdownErrors = append(shutdownErrors, errors.Wrap(err, "failed to shutdown auction settler"))
	}

	log.Info().Msg("Shutting down orchestrator...")
	if err := orchestrator.Shutdown(shutdownTimeout); err != nil {
		shutdownErrors = append(shutdownErrors, errors.Wrap(err, "failed to shutdown orchestrator"))
	}

	if err := notifier.Shutdown(shutdownTimeout); err != nil {
		shutdownErrors = append(shutdownErrors, errors.Wrap(err, "failed to shutdown notifier"))
	}

	// Log any shutdown errors
	if len(shutdownErrors) > 0 {
		log.Error().Int("errors_count", len(shutdownErrors)).Msg("Encountered errors during shutdown")
		for _, err := range shutdownErrors {
			log.Error().Err(err).Msg("Error during shutdown")
		}
		return
	}

	log.Info().Msg("All services shut down successfully")
}

// vaaVerifier returns the client that checks fill VAAs. Without a guardian set every VAA would
// fail quorum, so fills are accepted unverified.
func vaaVerifier(cfg config.WormholeConfig, client *wormhole.Client, logger zerolog.Logger) services.VAAVerifier {
	if len(cfg.Guardians) == 0 {
		logger.Warn().Msg("WORMHOLE_GUARDIANS not set, fill VAAs are not verified")
		return nil
	}

	return client
}

// createListeners creates a hook listener for every chain the resolver has a client for
func createListeners(
	resolver services.ClientResolver,
	database db.Database,
	cfg *config.Config,
	sink services.IntentSink,
	publisher services.Publisher,
	logger zerolog.Logger,
) ([]*services.HookListenerService, error) {
	listeners := make([]*services.HookListenerService, 0, len(cfg.ChainConfigs))

	for _, chainID := range resolver.ChainIDs() {
		chain, ok := cfg.ChainConfigs[chainID]
		if !ok {
			return nil, errors.Errorf("no configuration for chain %d", chainID)
		}

		client, err := resolver.GetClient(chainID)
		if err != nil {
			return nil, err
		}

		listener, err := services.NewHookListenerService(client, database, *chain, sink, publisher, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create hook listener for chain %d", chainID)
		}

		listeners = append(listeners, listener)
	}

	sort.Slice(listeners, func(i, j int) bool { return listeners[i].ChainID() < listeners[j].ChainID() })

	return listeners, nil
}

type flagSet struct {
	LogJSON  bool
	LogLevel zerolog.Level
}

func parseFlags() flagSet {
	var (
		logJSON  bool
		logLevel string
	)

	flag.BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	flag.StringVar(&logLevel, "log-level", "info", "Set log level (debug, info, warn, error)")

	flag.Parse()

	return flagSet{
		LogJSON:  logJSON,
		LogLevel: logging.ParseLevel(logLevel),
	}
}
