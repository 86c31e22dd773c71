package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	fromType string
	toType   string
	force    bool

	rootCmd = &cobra.Command{
		Use:   "fastctx-migrate <source> <target>",
		Short: "Copy the run ledger between storage backends",
		Example: `  fastctx-migrate ./data ./fastctx.db
  fastctx-migrate --from sqlite --to jsonfile ./fastctx.db ./data`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runMigrate,
	}
)

func init() {
	rootCmd.Flags().StringVar(&fromType, "from", "jsonfile", "source ledger type ("+fmt.Sprint(storage.ListStores())+")")
	rootCmd.Flags().StringVar(&toType, "to", "sqlite", "target ledger type")
	rootCmd.Flags().BoolVar(&force, "force", false, "write into a target that already exists")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func ledgerOptions(kind, location string) storage.Options {
	if kind == "sqlite" {
		return storage.Options{DBPath: location}
	}
	return storage.Options{BaseDir: location}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	source, target := args[0], args[1]

	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("source %s: %w", source, err)
	}
	if _, err := os.Stat(target); err == nil && !force {
		return fmt.Errorf("target already exists: %s (use --force to merge)", target)
	}

	from, err := storage.NewStore(fromType, ledgerOptions(fromType, source))
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer from.Close()

	to, err := storage.NewStore(toType, ledgerOptions(toType, target))
	if err != nil {
		return fmt.Errorf("failed to open target: %w", err)
	}
	defer to.Close()

	summary, err := migrate(cmd.Context(), from, to, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Migrated %d runs from %s to %s\n", summary.Total, fromType, toType)
	statuses := make([]string, 0, len(summary.ByStatus))
	for status := range summary.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("  %-10s %d\n", status, summary.ByStatus[models.RunStatus(status)])
	}
	if summary.Interrupted > 0 {
		fmt.Printf("  %d interrupted runs marked failed\n", summary.Interrupted)
	}
	return nil
}

type migrationSummary struct {
	Total       int
	ByStatus    map[models.RunStatus]int
	Interrupted int
}

// migrate copies every run under the ID it already has. Runs that were still
// pending or running cannot resume in the new ledger and are closed out.
func migrate(ctx context.Context, from, to storage.Store, logger zerolog.Logger) (*migrationSummary, error) {
	runs, err := from.List(ctx, models.RunFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	summary := &migrationSummary{ByStatus: make(map[models.RunStatus]int)}
	for _, run := range runs {
		if err := to.Save(ctx, run); err != nil {
			return summary, fmt.Errorf("failed to migrate run %d: %w", run.ID, err)
		}
		logger.Debug().Int("id", run.ID).Str("kind", run.Kind).Msg("Run copied")
		summary.Total++
		summary.ByStatus[run.Status]++
	}

	n, err := storage.RecoverInterrupted(ctx, to)
	if err != nil {
		return summary, fmt.Errorf("failed to close interrupted runs: %w", err)
	}
	summary.Interrupted = n
	return summary, nil
}
