package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

// Config holds all configuration for the API server
type Config struct {
	// Server configuration
	Port           string
	AllowedOrigins string

	// Database configuration
	DatabaseURL string

	// EVM chains keyed by chain id
	ChainConfigs   map[uint64]*ChainConfig
	DefaultChainID uint64

	Sui       SuiConfig
	CCTP      CCTPConfig
	Wormhole  WormholeConfig
	Lifi      LifiConfig
	DefiLlama DefiLlamaConfig
	Auction   AuctionConfig
	RateLimit RateLimitConfig

	OrchestratorWorkers int
}

// ChainConfig describes one EVM chain with a deployed hook
type ChainConfig struct {
	ChainID      uint64
	Chain        models.EvmChain
	RPCURL       string
	HookAddress  string
	PollInterval time.Duration
}

// HasHook is false when the hook address is unset or the zero address
func (c ChainConfig) HasHook() bool {
	return c.HookAddress != "" && !strings.EqualFold(c.HookAddress, ZeroAddress)
}

type SuiConfig struct {
	RPCURL           string
	Network          models.SuiNetwork
	ScallopPackageID string
	NaviPackageID    string
	SwapPackageID    string
}

type CCTPConfig struct {
	APIURL             string
	PollAttempts       uint32
	PollInterval       time.Duration
	AttestationPolling bool
}

type WormholeConfig struct {
	APIURL    string
	Guardians []string
}

type LifiConfig struct {
	APIURL string
	APIKey string
}

type DefiLlamaConfig struct {
	APIURL   string
	CacheTTL time.Duration
}

type AuctionConfig struct {
	BidWindow       time.Duration
	DutchDuration   time.Duration
	DutchPremiumBps int64
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	var (
		env = envReader{}
		cfg = &Config{
			Port:           getEnvOrDefault("PORT", "8080"),
			AllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),
			DatabaseURL:    getEnvOrDefault("DATABASE_URL", "postgresql://localhost:5432/naisu?sslmode=disable"),
			Sui: SuiConfig{
				Network:          models.SuiNetwork(getEnvOrDefault("SUI_NETWORK", string(models.SuiTestnet))),
				ScallopPackageID: os.Getenv("SCALLOP_PACKAGE_ID"),
				NaviPackageID:    os.Getenv("NAVI_PACKAGE_ID"),
				SwapPackageID:    os.Getenv("SUI_SWAP_PACKAGE_ID"),
			},
			CCTP: CCTPConfig{
				APIURL:             getEnvOrDefault("CCTP_API_URL", "https://iris-api-sandbox.circle.com"),
				PollAttempts:       uint32(env.int("CCTP_POLL_ATTEMPTS", 60)),
				PollInterval:       env.duration("CCTP_POLL_INTERVAL", 5*time.Second),
				AttestationPolling: env.bool("ATTESTATION_POLLING", false),
			},
			Wormhole: WormholeConfig{
				APIURL:    getEnvOrDefault("WORMHOLE_API_URL", "https://api.testnet.wormholescan.io"),
				Guardians: splitList(os.Getenv("WORMHOLE_GUARDIANS")),
			},
			Lifi: LifiConfig{
				APIURL: getEnvOrDefault("LIFI_API_URL", "https://li.quest/v1"),
				APIKey: os.Getenv("LIFI_API_KEY"),
			},
			DefiLlama: DefiLlamaConfig{
				APIURL:   getEnvOrDefault("DEFILLAMA_API_URL", "https://yields.llama.fi"),
				CacheTTL: env.duration("APY_CACHE_TTL", 5*time.Minute),
			},
			Auction: AuctionConfig{
				BidWindow:       env.duration("AUCTION_BID_WINDOW", 30*time.Second),
				DutchDuration:   env.duration("DUTCH_AUCTION_DURATION", 5*time.Minute),
				DutchPremiumBps: int64(env.int("DUTCH_START_PREMIUM_BPS", 100)),
			},
			RateLimit: RateLimitConfig{
				RPS:   env.float("RATE_LIMIT_RPS", 20),
				Burst: env.int("RATE_LIMIT_BURST", 40),
			},
			OrchestratorWorkers: env.int("ORCHESTRATOR_WORKERS", 4),
		}
	)

	cfg.Sui.RPCURL = getEnvOrDefault("SUI_RPC_URL", cfg.Sui.Network.RPCURL())

	chains, defaultChainID, err := loadChainConfigs(&env)
	if err != nil {
		return nil, err
	}

	cfg.ChainConfigs = chains
	cfg.DefaultChainID = defaultChainID

	if len(env.errs) > 0 {
		return nil, errors.Wrap(env.errs[0], "invalid configuration")
	}

	if cfg.OrchestratorWorkers < 1 {
		return nil, errors.New("ORCHESTRATOR_WORKERS must be positive")
	}

	return cfg, nil
}

// loadChainConfigs reads the primary chain from EVM_* variables and any extra chains listed
// in CHAINS from <NAME>_RPC_URL / <NAME>_HOOK_ADDRESS.
func loadChainConfigs(env *envReader) (map[uint64]*ChainConfig, uint64, error) {
	pollInterval := env.duration("EVM_POLL_INTERVAL", 5*time.Second)

	primaryID := uint64(env.int("EVM_CHAIN_ID", int(defaultChainID)))
	primary, err := models.EvmChainFromID(primaryID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "EVM_CHAIN_ID")
	}

	chains := map[uint64]*ChainConfig{
		primaryID: {
			ChainID:      primaryID,
			Chain:        primary,
			RPCURL:       getEnvOrDefault("EVM_RPC_URL", defaultRPCURLs[primaryID]),
			HookAddress:  getEnvOrDefault("HOOK_ADDRESS", ZeroAddress),
			PollInterval: pollInterval,
		},
	}

	for _, raw := range splitList(os.Getenv("CHAINS")) {
		chainID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "invalid chain id %q in CHAINS", raw)
		}

		if _, exists := chains[chainID]; exists {
			continue
		}

		chain, err := models.EvmChainFromID(chainID)
		if err != nil {
			return nil, 0, errors.Wrap(err, "CHAINS")
		}

		prefix := envPrefix(chain)

		rpcURL := getEnvOrDefault(prefix+"_RPC_URL", defaultRPCURLs[chainID])
		if rpcURL == "" {
			return nil, 0, errors.Errorf("%s_RPC_URL is required for chain %d", prefix, chainID)
		}

		chains[chainID] = &ChainConfig{
			ChainID:      chainID,
			Chain:        chain,
			RPCURL:       rpcURL,
			HookAddress:  getEnvOrDefault(prefix+"_HOOK_ADDRESS", ZeroAddress),
			PollInterval: pollInterval,
		}
	}

	return chains, primaryID, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and collects parse errors instead of failing fast
type envReader struct {
	errs []error
}

func (r *envReader) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, errors.Wrapf(err, "%s", key))
		return def
	}

	return v
}

func (r *envReader) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.errs = append(r.errs, errors.Wrapf(err, "%s", key))
		return def
	}

	return v
}

func (r *envReader) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, errors.Wrapf(err, "%s", key))
		return def
	}

	return v
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, errors.Wrapf(err, "%s", key))
		return def
	}

	return v
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
