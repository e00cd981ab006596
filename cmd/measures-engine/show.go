package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rxmetrics/rxmetrics/internal/config"
	"github.com/rxmetrics/rxmetrics/internal/domain/measure"
	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
	"github.com/rxmetrics/rxmetrics/internal/domain/savings"
	"github.com/rxmetrics/rxmetrics/internal/platform/db"
)

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Query computed results",
	}
	cmd.AddCommand(showMeasureCmd())
	cmd.AddCommand(showGlobalCmd())
	cmd.AddCommand(showSavingsCmd())
	return cmd
}

func withServices(fn func(ctx context.Context, cfg *config.Config, measures *measure.Service, sav *savings.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	measures := measure.NewService(measure.NewValueRepoPG(pool))
	sav := savings.NewService(savings.NewRepoPG(pool), cfg.SavingsFloorAtZero)
	return fn(ctx, cfg, measures, sav)
}

func fmtNullable(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.4f", *v)
}

func showMeasureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Show one organization's values for a measure",
		RunE: func(cmd *cobra.Command, args []string) error {
			measureID, _ := cmd.Flags().GetString("measure")
			orgCode, _ := cmd.Flags().GetString("org")
			month, _ := cmd.Flags().GetString("month")
			if measureID == "" || orgCode == "" {
				return fmt.Errorf("--measure and --org are required")
			}

			return withServices(func(ctx context.Context, cfg *config.Config, measures *measure.Service, _ *savings.Service) error {
				var values []*measure.Value
				if month != "" {
					period, err := prescribing.ParsePeriod(month)
					if err != nil {
						return err
					}
					v, err := measures.GetValue(ctx, measureID, orgCode, period)
					if err != nil {
						return err
					}
					values = []*measure.Value{v}
				} else {
					var err error
					if values, err = measures.OrganizationSeries(ctx, measureID, orgCode); err != nil {
						return err
					}
				}

				fmt.Printf("%-8s %14s %14s %10s %10s\n", "PERIOD", "NUMERATOR", "DENOMINATOR", "VALUE", "PCTILE")
				for _, v := range values {
					fmt.Printf("%-8s %14.2f %14.2f %10s %10s\n",
						v.Period, v.Numerator, v.Denominator,
						fmtNullable(v.CalcValue), fmtNullable(v.Percentile))
				}
				return nil
			})
		},
	}
	cmd.Flags().String("measure", "", "Measure id")
	cmd.Flags().String("org", "", "Organization code")
	cmd.Flags().String("month", "", "Single month (default: full series)")
	return cmd
}

func showGlobalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "global",
		Short: "Show the population row and centile table for a measure month",
		RunE: func(cmd *cobra.Command, args []string) error {
			measureID, _ := cmd.Flags().GetString("measure")
			month, _ := cmd.Flags().GetString("month")
			orgType, _ := cmd.Flags().GetString("org-type")
			if measureID == "" || month == "" {
				return fmt.Errorf("--measure and --month are required")
			}
			period, err := prescribing.ParsePeriod(month)
			if err != nil {
				return err
			}

			return withServices(func(ctx context.Context, cfg *config.Config, measures *measure.Service, _ *savings.Service) error {
				g, err := measures.GetGlobal(ctx, measureID, period, organization.OrgType(orgType))
				if err != nil {
					return err
				}
				fmt.Printf("%s %s %s: numerator %.2f denominator %.2f\n",
					g.MeasureID, g.Period, g.OrgType, g.Numerator, g.Denominator)
				for _, c := range measure.Centiles {
					fmt.Printf("  p%-3d %s\n", c, fmtNullable(g.Centiles[c]))
				}
				return nil
			})
		},
	}
	cmd.Flags().String("measure", "", "Measure id")
	cmd.Flags().String("month", "", "Month (YYYY-MM)")
	cmd.Flags().String("org-type", string(organization.TypePractice), "Organization type")
	return cmd
}

func showSavingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "savings",
		Short: "Show one organization's saving opportunities for a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgCode, _ := cmd.Flags().GetString("org")
			month, _ := cmd.Flags().GetString("month")
			if orgCode == "" || month == "" {
				return fmt.Errorf("--org and --month are required")
			}
			period, err := prescribing.ParsePeriod(month)
			if err != nil {
				return err
			}

			return withServices(func(ctx context.Context, cfg *config.Config, _ *measure.Service, sav *savings.Service) error {
				records, err := sav.OrgSavings(ctx, orgCode, period)
				if err != nil {
					return err
				}
				total, err := sav.TotalForOrg(ctx, orgCode, period)
				if err != nil {
					return err
				}

				fmt.Printf("%-20s %12s %12s %12s %12s\n",
					"PRESENTATION", "UNIT PRICE", "BENCHMARK", "QUANTITY", "SAVINGS")
				for _, rec := range records {
					fmt.Printf("%-20s %12.4f %12.4f %12.1f %12.2f\n",
						rec.PresentationCode, rec.UnitPrice, rec.BenchmarkPrice,
						rec.Quantity, rec.PossibleSavings)
				}
				fmt.Printf("Total possible savings: %.2f\n", total)
				return nil
			})
		},
	}
	cmd.Flags().String("org", "", "Organization code")
	cmd.Flags().String("month", "", "Month (YYYY-MM)")
	return cmd
}
