package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pricing-cli/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status <productID>",
	Short: "Show the latest snapshot and pricing insight for a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Store.GetLatestSnapshot(ctx, args[0])
		if err != nil {
			return err
		}
		if snap == nil {
			return eris.Errorf("no competitor snapshot found for %s", args[0])
		}
		insight, err := env.Store.GetLatestInsight(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, api.StatusResponse{Snapshot: snap, Insight: insight})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pricing queue health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		h, err := env.Collector.Collect(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, h)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
}
