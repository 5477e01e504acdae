package main

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "SOLVER"

type solverConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	Address      string        `mapstructure:"address"`
	SpreadBps    int64         `mapstructure:"spread_bps"`
	MinAPYBps    int64         `mapstructure:"min_apy_bps"`
	MaxAmount    string        `mapstructure:"max_amount"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// balance rule, disabled unless both are set
	RPCURL      string `mapstructure:"rpc_url"`
	USDCAddress string `mapstructure:"usdc_address"`
}

func (c solverConfig) maxAmount() decimal.Decimal {
	if c.MaxAmount == "" {
		return decimal.Zero
	}

	return decimal.RequireFromString(c.MaxAmount)
}

func (c solverConfig) checksBalance() bool {
	return c.RPCURL != "" && c.USDCAddress != ""
}

func (c solverConfig) validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}

	if c.Address == "" {
		return errors.New("address is required")
	}

	if c.SpreadBps < 0 || c.SpreadBps >= 10_000 {
		return errors.Errorf("spread_bps must be in [0, 10000), got %d", c.SpreadBps)
	}

	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}

	if c.MaxAmount != "" {
		if _, err := decimal.NewFromString(c.MaxAmount); err != nil {
			return errors.Wrap(err, "invalid max_amount")
		}
	}

	if c.checksBalance() {
		if !common.IsHexAddress(c.USDCAddress) {
			return errors.Errorf("invalid usdc_address %q", c.USDCAddress)
		}

		if !common.IsHexAddress(c.Address) {
			return errors.New("balance checks need an EVM solver address")
		}
	}

	return nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("api_url", "http://localhost:8080/api/v1")
	v.SetDefault("address", "")
	v.SetDefault("spread_bps", 50)
	v.SetDefault("min_apy_bps", 0)
	v.SetDefault("max_amount", "")
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("rpc_url", "")
	v.SetDefault("usdc_address", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// loadConfig reads path (any format viper supports) when given, then lets SOLVER_* env vars override it
func loadConfig(v *viper.Viper, path string) (solverConfig, error) {
	var cfg solverConfig

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode config")
	}

	return cfg, cfg.validate()
}
