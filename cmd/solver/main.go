package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/naisu-labs/naisu/clients/naisu"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/solver"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logJSON    bool

	v      = newViper()
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "solver",
	Short: "Naisu solver bot",
	Long: `Competes in Naisu auctions.

Sealed-bid auctions get an APY bid on the best live strategy, less the solver's spread.
Dutch auctions are filled once the required output drops to what the solver delivers.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(os.Stderr, logging.ParseLevel(logLevel), logJSON)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll open auctions and compete until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runSolver,
}

var quoteCmd = &cobra.Command{
	Use:   "quote [intent-id]",
	Short: "Print the bid the solver would make for an intent",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuote,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Set log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")

	rootCmd.PersistentFlags().String("api-url", "", "Naisu API base url (overrides api_url)")
	runCmd.Flags().Duration("poll-interval", 0, "Auction poll interval (overrides poll_interval)")

	// flags only win over the config file when set
	if err := v.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("poll_interval", runCmd.Flags().Lookup("poll-interval")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(quoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSolver(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(v, configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	balance, closeBalance, err := newBalanceFunc(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBalance()

	b, err := newBot(naisu.New(cfg.APIURL), cfg, balance, logger)
	if err != nil {
		return err
	}

	return b.Run(ctx, cfg.PollInterval)
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v, configPath)
	if err != nil {
		return err
	}

	b, err := newBot(naisu.New(cfg.APIURL), cfg, nil, logger)
	if err != nil {
		return err
	}

	q, err := b.Quote(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(q)
}

// newBalanceFunc dials rpc_url when the balance rule is configured
func newBalanceFunc(ctx context.Context, cfg solverConfig) (balanceFunc, func(), error) {
	if !cfg.checksBalance() {
		return nil, func() {}, nil
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to dial %s", cfg.RPCURL)
	}

	var (
		token = common.HexToAddress(cfg.USDCAddress)
		owner = common.HexToAddress(cfg.Address)
	)

	balance := func(ctx context.Context, amount decimal.Decimal) (bool, error) {
		return solver.EnoughBalance(ctx, client, token, owner, amount, usdcDecimals)
	}

	return balance, client.Close, nil
}
