package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/pricing-cli/internal/jobs"
)

var enqueuePriority int

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <productID> <url>...",
	Short: "Queue a competitor scrape job for a product",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "enqueue")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Jobs.Enqueue(ctx, jobs.EnqueueRequest{
			ProductID: args[0],
			URLs:      args[1:],
			Priority:  enqueuePriority,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", 0, "job priority")
	rootCmd.AddCommand(enqueueCmd)
}
