// cmd/migrate applies the *.up.sql migrations in migrations/ to the ledger's
// Postgres database. The database URL comes from --db, QLDB_DATABASE_URL,
// DATABASE_URL or qldb.yaml, in that order.
//
// Usage:
//
//	go run ./cmd/migrate
//	DATABASE_URL=postgres://... go run ./cmd/migrate --dir migrations
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/qldb/internal/config"
	"github.com/jmerrifield20/qldb/internal/store"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("migrate exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	flags := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	cfgFile := flags.String("config", "", "config file (default qldb.yaml in ./configs, . or ~/.qldb)")
	dir := flags.String("dir", "migrations", "directory holding *.up.sql files")
	flags.String("db", "", "Postgres connection URL")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgFile, flags)
	if err != nil {
		return err
	}
	dbURL := cfg.Store.DatabaseURL
	if !flags.Changed("db") && os.Getenv("QLDB_DATABASE_URL") == "" {
		if env := os.Getenv("DATABASE_URL"); env != "" {
			dbURL = env
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres")

	applied, err := store.Migrate(ctx, pool, *dir, logger)
	if err != nil {
		return err
	}
	if applied == 0 {
		logger.Info("nothing to migrate, already up to date")
	} else {
		logger.Info("migrations applied", zap.Int("count", applied))
	}
	return nil
}
