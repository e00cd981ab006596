package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rxmetrics/rxmetrics/internal/config"
	"github.com/rxmetrics/rxmetrics/internal/domain/measure"
	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/pipeline"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
	"github.com/rxmetrics/rxmetrics/internal/domain/savings"
	"github.com/rxmetrics/rxmetrics/internal/platform/db"
	"github.com/rxmetrics/rxmetrics/internal/platform/runlog"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "measures-engine",
		Short: "Prescribing measures computation engine",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(savingsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(showCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute measure values for the selected months",
		RunE: func(cmd *cobra.Command, args []string) error {
			month, _ := cmd.Flags().GetString("month")
			startDate, _ := cmd.Flags().GetString("start-date")
			endDate, _ := cmd.Flags().GetString("end-date")
			measureIDs, _ := cmd.Flags().GetString("measure")
			definitionsOnly, _ := cmd.Flags().GetBool("definitions-only")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			catalog, err := measure.LoadCatalog(cfg.MeasuresDir)
			if err != nil {
				return err
			}
			for _, cfgErr := range catalog.Invalid() {
				logger.Error().Str("measure", cfgErr.MeasureID).Msg(cfgErr.Error())
			}
			defs, err := catalog.Select(splitIDs(measureIDs))
			if err != nil {
				return err
			}

			if definitionsOnly {
				fmt.Printf("Catalog OK: %d runnable, %d skipped, %d invalid.\n",
					len(catalog.Definitions()), len(catalog.Skipped()), len(catalog.Invalid()))
				if len(catalog.Invalid()) > 0 {
					return fmt.Errorf("catalog has %d invalid definition(s)", len(catalog.Invalid()))
				}
				return nil
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			feed := prescribing.NewFeedPG(pool)
			periods, err := resolvePeriods(ctx, month, startDate, endDate, feed.Periods)
			if err != nil {
				return err
			}

			runner := pipeline.NewRunner(
				feed,
				organization.NewService(organization.NewRepoPG(pool)),
				measure.NewValueRepoPG(pool),
				runlog.NewRepoPG(pool),
				cfg.PipelineWorkers,
				cfg.RankScale,
				logger,
			)
			report, err := runner.Run(ctx, pipeline.RunOptions{Definitions: defs, Periods: periods})
			if err != nil {
				return err
			}
			return summarize(report)
		},
	}
	cmd.Flags().String("month", "", "Single month to compute (YYYY-MM)")
	cmd.Flags().String("start-date", "", "First month of the range (YYYY-MM)")
	cmd.Flags().String("end-date", "", "Last month of the range (YYYY-MM)")
	cmd.Flags().String("measure", "", "Comma-separated measure ids (default: all)")
	cmd.Flags().Bool("definitions-only", false, "Load and validate the catalog without computing")
	return cmd
}

func savingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "savings",
		Short: "Compute cost-saving opportunities for the selected months",
		RunE: func(cmd *cobra.Command, args []string) error {
			month, _ := cmd.Flags().GetString("month")
			startDate, _ := cmd.Flags().GetString("start-date")
			endDate, _ := cmd.Flags().GetString("end-date")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			prices := prescribing.NewFeedPG(pool)
			periods, err := resolvePeriods(ctx, month, startDate, endDate, prices.PricePeriods)
			if err != nil {
				return err
			}

			runner := pipeline.NewSavingsRunner(
				prices,
				savings.NewEstimator(cfg.MinPeerCount),
				savings.NewRepoPG(pool),
				runlog.NewRepoPG(pool),
				cfg.PipelineWorkers,
				logger,
			)
			report, err := runner.Run(ctx, periods)
			if err != nil {
				return err
			}
			return summarize(report)
		},
	}
	cmd.Flags().String("month", "", "Single month to compute (YYYY-MM)")
	cmd.Flags().String("start-date", "", "First month of the range (YYYY-MM)")
	cmd.Flags().String("end-date", "", "Last month of the range (YYYY-MM)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the measure catalog",
	}

	loadFrom := func(cmd *cobra.Command) (*measure.Catalog, error) {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			dir = cfg.MeasuresDir
		}
		return measure.LoadCatalog(dir)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List measures in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadFrom(cmd)
			if err != nil {
				return err
			}
			for _, def := range catalog.Definitions() {
				fmt.Printf("%-30s %s\n", def.ID, def.Name)
			}
			for _, id := range catalog.Skipped() {
				fmt.Printf("%-30s (skipped)\n", id)
			}
			for _, cfgErr := range catalog.Invalid() {
				fmt.Printf("%-30s INVALID: %s\n", cfgErr.MeasureID, cfgErr.Reason)
			}
			return nil
		},
	}
	listCmd.Flags().String("dir", "", "Path to measure definitions")
	cmd.AddCommand(listCmd)

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate every measure definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadFrom(cmd)
			if err != nil {
				return err
			}
			for _, cfgErr := range catalog.Invalid() {
				fmt.Println(cfgErr.Error())
			}
			if n := len(catalog.Invalid()); n > 0 {
				return fmt.Errorf("%d invalid definition(s)", n)
			}
			fmt.Printf("Catalog OK: %d runnable, %d skipped.\n",
				len(catalog.Definitions()), len(catalog.Skipped()))
			return nil
		},
	}
	validateCmd.Flags().String("dir", "", "Path to measure definitions")
	cmd.AddCommand(validateCmd)

	return cmd
}

// splitIDs parses the --measure flag value.
func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// resolvePeriods turns the period flags into a concrete period list: --month
// wins, then a --start-date/--end-date range filtered against the feed, then
// nil which lets the pipeline take every feed period.
func resolvePeriods(ctx context.Context, month, startDate, endDate string, feedPeriods func(context.Context) ([]prescribing.Period, error)) ([]prescribing.Period, error) {
	if month != "" {
		if startDate != "" || endDate != "" {
			return nil, fmt.Errorf("--month cannot be combined with --start-date/--end-date")
		}
		p, err := prescribing.ParsePeriod(month)
		if err != nil {
			return nil, err
		}
		return []prescribing.Period{p}, nil
	}

	if startDate == "" && endDate == "" {
		return nil, nil
	}

	var start, end prescribing.Period
	var err error
	if startDate != "" {
		if start, err = prescribing.ParsePeriod(startDate); err != nil {
			return nil, err
		}
	}
	if endDate != "" {
		if end, err = prescribing.ParsePeriod(endDate); err != nil {
			return nil, err
		}
	}
	if start != "" && end != "" && end.Before(start) {
		return nil, fmt.Errorf("--end-date %s is before --start-date %s", end, start)
	}

	all, err := feedPeriods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feed periods: %w", err)
	}
	var out []prescribing.Period
	for _, p := range all {
		if start != "" && p.Before(start) {
			continue
		}
		if end != "" && end.Before(p) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no feed periods in range %s..%s", startDate, endDate)
	}
	return out, nil
}

func summarize(report *pipeline.Report) error {
	failed := report.Failed()
	fmt.Printf("Done: %d unit(s), %d row(s) written, %d failed, took %s.\n",
		len(report.Units), report.RowsWritten(), len(failed),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, u := range failed {
		if u.MeasureID != "" {
			fmt.Printf("  FAILED %s %s: %v\n", u.MeasureID, u.Period, u.Err)
		} else {
			fmt.Printf("  FAILED %s: %v\n", u.Period, u.Err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d unit(s) failed", len(failed))
	}
	return nil
}
