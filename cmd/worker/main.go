// Package main provides the gazette worker: scheduled DJE runs, the
// publications API, migrations and exports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"djeworker/internal/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCMD().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		stop()
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "worker",
		Short:         "DJE-SP RPV publication worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath, "config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "override logging.format (text, json)")

	root.AddCommand(
		runCMD(flags),
		scheduleCMD(flags),
		serveCMD(flags),
		migrateCMD(flags),
		exportCMD(flags),
		tokenCMD(flags),
	)

	return root
}
