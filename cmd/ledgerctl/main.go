// Command ledgerctl is the operator CLI for the fact ledger: schema
// migrations, fact review, conflict resolution and review statistics.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/anacreon-labs/factledger/internal/buildconfig"
	"github.com/anacreon-labs/factledger/internal/config"
	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/service"
	"github.com/anacreon-labs/factledger/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries what every subcommand needs. The ledger is opened lazily so
// that "migrate" and "--help" never touch it.
type cli struct {
	out      io.Writer
	logger   *zap.Logger
	reviewer string

	open    func(ctx context.Context) (domain.Ledger, func(), error)
	closeFn func()

	facts      *service.FactService
	conflicts  *service.ConflictService
	validation *service.ValidationService
}

func (c *cli) services(ctx context.Context) error {
	if c.facts != nil {
		return nil
	}
	ledger, closeFn, err := c.open(ctx)
	if err != nil {
		return err
	}
	c.closeFn = closeFn
	c.facts = service.NewFactService(ledger, c.logger)
	c.conflicts = service.NewConflictService(ledger, c.facts, c.logger)
	c.validation = service.NewValidationService(ledger, c.facts, c.logger)
	return nil
}

func (c *cli) close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func openLedger(ctx context.Context) (domain.Ledger, func(), error) {
	if config.LedgerBackend() == config.BackendMemory {
		return store.NewMemoryLedger(), func() {}, nil
	}
	pool, err := openPostgres(ctx)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresLedger(pool), pool.Close, nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the fact ledger",
		Version:       buildconfig.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			c.close()
		},
	}
	root.SetVersionTemplate(buildconfig.String() + "\n")
	root.PersistentFlags().StringVar(&c.reviewer, "reviewer", config.DefaultReviewer(), "name recorded as changed_by on mutations")

	root.AddCommand(
		newMigrateCmd(c),
		newFactsCmd(c),
		newConflictsCmd(c),
		newStatsCmd(c),
	)
	return root
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := store.Migrate(cmd.Context(), pool, c.logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(c.out, "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(c.out, "applied %s\n", v)
			}
			return nil
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show validation session statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			var userID *string
			if user != "" {
				userID = &user
			}
			stats, err := c.validation.GetStats(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Sessions:            %d (%d completed)\n", stats.TotalSessions, stats.CompletedSessions)
			fmt.Fprintf(c.out, "Candidates shown:    %d\n", stats.TotalCandidatesPresented)
			fmt.Fprintf(c.out, "Approved:            %d\n", stats.TotalApproved)
			fmt.Fprintf(c.out, "Rejected:            %d\n", stats.TotalRejected)
			fmt.Fprintf(c.out, "Edited:              %d\n", stats.TotalEdited)
			fmt.Fprintf(c.out, "Approval rate:       %.1f%%\n", stats.ApprovalRate*100)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only sessions closed by this reviewer")
	return cmd
}

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := config.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	c := &cli{out: os.Stdout, logger: logger, open: openLedger}
	if err := newRootCmd(c).ExecuteContext(context.Background()); err != nil {
		c.close()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
