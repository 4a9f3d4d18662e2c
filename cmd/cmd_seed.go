package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/okian/reconcile/internal/app"
	"github.com/okian/reconcile/internal/config"
	"github.com/okian/reconcile/internal/fixtures"
	"github.com/okian/reconcile/pkg/logger"
)

func newSeedCmd(c *cli) *cobra.Command {
	fc := fixtures.DefaultConfig()
	var workers int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the configured store with synthetic data containing known defects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if fc.Organizations <= 0 || fc.AthletesPerOrg <= 0 {
				return fmt.Errorf("--orgs and --athletes must be > 0")
			}
			if c.cfg.StoreDriver == config.StoreMemory {
				logger.Get().Warn(ctx, "seeding the memory store; the data is gone when the command exits")
			}

			store, closeStore, err := app.OpenStore(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			ds := fixtures.Generate(fc)
			if err := fixtures.Seed(ctx, store, ds, workers); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ds.Summary)
		},
	}

	f := cmd.Flags()
	f.IntVar(&fc.Organizations, "orgs", fc.Organizations, "Number of organizations")
	f.IntVar(&fc.AthletesPerOrg, "athletes", fc.AthletesPerOrg, "Athletes per organization")
	f.IntVar(&fc.MetricsPerOrg, "metrics", fc.MetricsPerOrg, "Metrics per organization")
	f.IntVar(&fc.RecordsPerAthlete, "records", fc.RecordsPerAthlete, "Performance records per athlete")
	f.Float64Var(&fc.MissingOrgRatio, "missing-org", fc.MissingOrgRatio, "Share of rows without organization_id")
	f.Float64Var(&fc.OrphanRatio, "orphans", fc.OrphanRatio, "Share of records pointing at missing athletes")
	f.Float64Var(&fc.BadDateRatio, "bad-dates", fc.BadDateRatio, "Share of records with an unparseable date")
	f.Float64Var(&fc.UnpaddedDateRatio, "unpadded-dates", fc.UnpaddedDateRatio, "Share of records with an unpadded date")
	f.Float64Var(&fc.NestedRatio, "nested", fc.NestedRatio, "Share of legacy rows with fields nested under data")
	f.Float64Var(&fc.UnknownTeamRatio, "unknown-teams", fc.UnknownTeamRatio, "Share of athletes carrying the unknown team")
	f.Uint64Var(&fc.Seed, "seed", fc.Seed, "Random seed")
	f.IntVar(&workers, "workers", 1, "Concurrent writers")
	return cmd
}
