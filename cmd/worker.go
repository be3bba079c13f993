package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pricing worker",
	Long:  "Claims pending competitor snapshots, prices them with Claude (or the fallback rule), and writes insights.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		w := env.newWorker()

		if workerOnce {
			processed, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			if !processed {
				zap.L().Info("no pending snapshots")
			}
			return nil
		}

		w.Run(ctx)
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "process at most one snapshot and exit")
	rootCmd.AddCommand(workerCmd)
}
