package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"djeworker/internal/scheduler"
)

func runCMD(flags *rootFlags) *cobra.Command {
	var (
		from, to string
		firstRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Long: "Search the DJE and extract RPV publications once. Without --from/--to the\n" +
			"window is today, or the first-run lookback when the store is empty.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.openStore(ctx); err != nil {
				return err
			}

			loc, err := a.cfg.Schedule.Location()
			if err != nil {
				return err
			}

			window, explicit, err := runWindowFlags(from, to, firstRun, a.cfg.Pipeline.FirstRunLookbackDays, time.Now().In(loc))
			if err != nil {
				return err
			}

			if explicit {
				return a.job()(ctx, window)
			}

			sched, err := a.newScheduler(ctx)
			if err != nil {
				return err
			}

			return sched.RunOnce(ctx)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day of the window (YYYY-MM-DD), defaults to --from")
	cmd.Flags().BoolVar(&firstRun, "first-run", false, "use the first-run lookback window regardless of stored data")
	cmd.MarkFlagsMutuallyExclusive("from", "first-run")

	return cmd
}

// runWindowFlags turns the run flags into a window. explicit is false when
// the scheduler should pick the window.
func runWindowFlags(from, to string, firstRun bool, lookback int, now time.Time) (scheduler.Window, bool, error) {
	today := scheduler.Day(now)

	if firstRun {
		return scheduler.Window{From: today.AddDate(0, 0, -lookback), To: today}, true, nil
	}

	if from == "" {
		if to != "" {
			return scheduler.Window{}, false, errors.New("--to requires --from")
		}

		return scheduler.Window{}, false, nil
	}

	start, err := time.ParseInLocation(time.DateOnly, from, now.Location())
	if err != nil {
		return scheduler.Window{}, false, fmt.Errorf("invalid --from: %w", err)
	}

	end := start

	if to != "" {
		if end, err = time.ParseInLocation(time.DateOnly, to, now.Location()); err != nil {
			return scheduler.Window{}, false, fmt.Errorf("invalid --to: %w", err)
		}
	}

	if end.Before(start) {
		return scheduler.Window{}, false, fmt.Errorf("window ends before it starts: %s", scheduler.Window{From: start, To: end})
	}

	return scheduler.Window{From: start, To: end}, true, nil
}

func scheduleCMD(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.openStore(ctx); err != nil {
				return err
			}

			sched, err := a.newScheduler(ctx)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.serveMetrics(ctx) })
			g.Go(func() error { return ignoreCancel(sched.Start(ctx)) })

			return g.Wait()
		},
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
