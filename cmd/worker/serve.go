package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"djeworker/internal/api"
)

func serveCMD(flags *rootFlags) *cobra.Command {
	var (
		addr       string
		noSchedule bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the publications API, and the scheduler alongside it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if addr != "" {
				a.cfg.API.Address = addr
			}

			if err := a.openStore(ctx); err != nil {
				return err
			}

			server, err := api.New(&a.cfg.API, a.repo, a.metrics.Handler(), func(ctx context.Context) error {
				return a.db.PingContext(ctx)
			}, a.log)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)

			if !noSchedule {
				sched, err := a.newScheduler(ctx)
				if err != nil {
					return err
				}

				g.Go(func() error { return ignoreCancel(sched.Start(ctx)) })
			}

			g.Go(func() error { return server.Start(ctx) })

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides api.address")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API without scheduled runs")

	return cmd
}
