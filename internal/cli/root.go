// Package cli implements the ops command-line interface using Cobra.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/logging"
	"ecoStreakAPI/internal/storage/postgres"
	"ecoStreakAPI/internal/storage/sqlite"
	"ecoStreakAPI/services"
)

const sqlitePrefix = "sqlite://"

type rootOptions struct {
	dsn     string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "EcoStreak maintenance commands",
		Long: `ops runs maintenance tasks against the EcoStreak database.

Use a postgres:// DSN for the production database or sqlite://<path> for a local one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.dsn == "" {
				_ = godotenv.Load()
				opts.dsn = os.Getenv("DATABASE_URL")
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "database DSN (defaults to DATABASE_URL)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stdout")

	cmd.AddCommand(newReconcileCmd(opts), newProgressCmd(opts))
	return cmd
}

// Execute runs the root command. Called from cmd/ops.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// engine is the reward service over whichever store the DSN names.
type engine struct {
	store   services.EngineStore
	rewards *services.RewardService
	close   func()
}

func openEngine(ctx context.Context, opts *rootOptions) (*engine, error) {
	if opts.dsn == "" {
		return nil, fmt.Errorf("no database configured: pass --dsn or set DATABASE_URL")
	}

	logger := zap.NewNop()
	if opts.verbose {
		l, err := logging.New(logging.Options{Level: "debug", Service: "ops"})
		if err != nil {
			return nil, err
		}
		logger = l
	}

	if path, ok := strings.CutPrefix(opts.dsn, sqlitePrefix); ok {
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return &engine{
			store:   store,
			rewards: services.NewRewardService(store, nil, logger),
			close:   func() { store.Close() },
		}, nil
	}

	pool, err := postgres.Connect(ctx, opts.dsn, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		return nil, err
	}
	store := postgres.NewStore(pool)
	return &engine{
		store:   store,
		rewards: services.NewRewardService(store, nil, logger),
		close:   pool.Close,
	}, nil
}
