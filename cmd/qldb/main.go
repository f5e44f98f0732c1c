package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmerrifield20/qldb/internal/config"
	"github.com/jmerrifield20/qldb/internal/service"
	"github.com/jmerrifield20/qldb/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	outputFormat string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qldb",
	Short: "Tamper-evident append-only ledger",
	Long: `qldb is a lightweight immutable ledger.

Every record is hash-chained to its predecessor, and fixed-size batches of
records are sealed into blocks under a Merkle root. Any edit to a stored
record is detected by "qldb verify", and "qldb prove" produces compact
inclusion proofs that can be checked against a block root alone.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default qldb.yaml in ./configs, . or ~/.qldb)")
	pf.StringVar(&outputFormat, "format", "text", "Output format: text or json")
	pf.String("store", "", "Storage driver: file, memory or postgres")
	pf.String("data-dir", "", "Directory holding ledger.jsonl and blocks.jsonl (file driver)")
	pf.String("db", "", "Postgres connection URL (postgres driver)")
	pf.Int("block-size", 0, "Records per sealed block")
	pf.Bool("auto-seal", false, "Seal a block whenever enough unsealed records exist")
	pf.BoolP("verbose", "v", false, "Development logging to stderr")

	rootCmd.AddCommand(addCmd, getCmd, historyCmd, listCmd)
	rootCmd.AddCommand(buildBlockCmd, listBlocksCmd, verifyCmd, proveCmd, verifyProofCmd)
	rootCmd.AddCommand(exportCmd, importCmd)
	rootCmd.AddCommand(serveCmd, versionCmd)
}

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  store.Store
	svc    *service.Service
}

// setup loads configuration, builds the logger and opens the store.
// level is the minimum level logged outside development mode.
func setup(cmd *cobra.Command, level zapcore.Level) (*app, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log.Development, level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	st, err := store.Open(cmd.Context(), cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	svc := service.New(st, service.Options{
		BlockSize: cfg.Ledger.BlockSize,
		AutoSeal:  cfg.Ledger.AutoSeal,
	}, logger)
	return &app{cfg: cfg, logger: logger, store: st, svc: svc}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	a.logger.Sync() //nolint:errcheck
}

// withApp adapts a command body that needs an open ledger to cobra's RunE.
// CLI commands only log warnings; stdout belongs to their output.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return withAppAt(zap.WarnLevel, fn)
}

// withAppAt is withApp with an explicit minimum log level.
func withAppAt(level zapcore.Level, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, level)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, args)
	}
}

// newLogger writes production JSON logs at level, or human-readable debug
// logs when development is set. Logs go to stderr.
func newLogger(development bool, level zapcore.Level) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func jsonOutput() bool { return outputFormat == "json" }

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the qldb version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("qldb %s\n", version)
	},
}
