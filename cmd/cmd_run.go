package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	app "github.com/okian/reconcile/internal/app"
	"github.com/okian/reconcile/internal/auth"
	"github.com/okian/reconcile/internal/domain/result"
	"github.com/okian/reconcile/pkg/logger"
)

// ErrJobFailed marks a run that did not complete.
var ErrJobFailed = errors.New("job failed")

// localPrincipal runs jobs from the command line; whoever holds the store
// credentials already has full access.
var localPrincipal = auth.Principal{Subject: "cli"}

func newRunCmd(c *cli) *cobra.Command {
	var p app.Params
	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job and print its summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDriver(cmd.Context(), func(ctx context.Context, d *app.Driver) error {
				res, err := d.Run(ctx, localPrincipal, args[0], p)
				if werr := writeResults(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
				return runError(res, err)
			})
		},
	}
	cmd.Flags().StringVar(&p.OrganizationID, "org", "", "Organization id (required by organization scoped jobs)")
	cmd.Flags().BoolVar(&p.DryRun, "dry-run", false, "Classify and count without writing")
	return cmd
}

func newRunAllCmd(c *cli) *cobra.Command {
	var p app.Params
	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run every job that does not need an organization",
		Long:  "Runs the jobs that are not organization scoped; with --org the scoped jobs run too, limited to that organization.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDriver(cmd.Context(), func(ctx context.Context, d *app.Driver) error {
				var names []string
				for _, j := range d.Jobs() {
					if !j.OrgScoped || p.OrganizationID != "" {
						names = append(names, j.Name)
					}
				}
				results, err := d.RunMany(ctx, localPrincipal, names, p)
				if werr := writeResults(cmd.OutOrStdout(), results...); werr != nil {
					return werr
				}
				if err != nil {
					return err
				}
				for _, res := range results {
					if rerr := runError(res, nil); rerr != nil {
						return rerr
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&p.OrganizationID, "org", "", "Also run organization scoped jobs for this organization")
	cmd.Flags().BoolVar(&p.DryRun, "dry-run", false, "Classify and count without writing")
	return cmd
}

func newJobsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the available jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := app.NewDriver(nil, auth.AllowAll{}, app.DriverOptions(c.cfg)...)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENTITY\tORG SCOPED\tDESCRIPTION")
			for _, j := range d.Jobs() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", j.Name, j.Entity, j.OrgScoped, j.Description)
			}
			return w.Flush()
		},
	}
}

// withDriver opens the configured store, builds a driver over it and calls fn
// with a context cancelled on SIGINT/SIGTERM.
func (c *cli) withDriver(parent context.Context, fn func(context.Context, *app.Driver) error) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Get().Warn(ctx, "closing store failed", logger.Error(err))
		}
	}()

	d := app.NewDriver(store, auth.AllowAll{}, app.DriverOptions(c.cfg)...)
	return fn(ctx, d)
}

func writeResults(w io.Writer, results ...result.JobResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	var v any = results
	if len(results) == 1 {
		v = results[0]
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func runError(res result.JobResult, err error) error {
	switch {
	case err != nil:
		return err
	case res.Cancelled:
		return fmt.Errorf("%s: %w", res.Job, context.Canceled)
	case !res.Success:
		return fmt.Errorf("%s: %w", res.Job, ErrJobFailed)
	}
	return nil
}
