package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load products or competitor snapshots from a YAML or JSON file",
}

var importProductsCmd = &cobra.Command{
	Use:   "products <file>",
	Short: "Upsert product master records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var products []model.Product
		if err := readDocument(args[0], &products); err != nil {
			return err
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.UpsertProducts(ctx, products)
		if err != nil {
			return eris.Wrap(err, "import products")
		}

		zap.L().Info("import complete",
			zap.Int("products", n),
			zap.String("file", args[0]),
		)
		return nil
	},
}

var importSnapshotsCmd = &cobra.Command{
	Use:   "snapshots <file>",
	Short: "Load scraped competitor snapshots for the worker to price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var snaps []model.CompetitorSnapshot
		if err := readDocument(args[0], &snaps); err != nil {
			return err
		}
		prepareSnapshots(snaps)

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := insertSnapshots(ctx, env.Store, snaps)
		if err != nil {
			return eris.Wrap(err, "import snapshots")
		}

		zap.L().Info("import complete",
			zap.Int64("snapshots", n),
			zap.String("file", args[0]),
		)
		return nil
	},
}

// bulkSnapshotInserter is implemented by stores that can COPY snapshots.
type bulkSnapshotInserter interface {
	BulkInsertSnapshots(ctx context.Context, snaps []model.CompetitorSnapshot) (int64, error)
}

func insertSnapshots(ctx context.Context, st store.Store, snaps []model.CompetitorSnapshot) (int64, error) {
	if bulk, ok := st.(bulkSnapshotInserter); ok {
		return bulk.BulkInsertSnapshots(ctx, snaps)
	}

	var n int64
	for i := range snaps {
		if err := st.CreateSnapshot(ctx, &snaps[i]); err != nil {
			return n, eris.Wrapf(err, "snapshot %d", i)
		}
		n++
	}
	return n, nil
}

// prepareSnapshots resets imported snapshots to pending so the worker sees
// them as fresh work.
func prepareSnapshots(snaps []model.CompetitorSnapshot) {
	for i := range snaps {
		snaps[i].PricingStatus = model.PricingStatusPending
		snaps[i].PricingInsightID = nil
		snaps[i].LastError = nil
	}
}

// readDocument decodes a YAML (or JSON, which is valid YAML) file into v.
func readDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "parse %s", path)
	}
	return nil
}

func init() {
	importCmd.AddCommand(importProductsCmd)
	importCmd.AddCommand(importSnapshotsCmd)
	rootCmd.AddCommand(importCmd)
}
