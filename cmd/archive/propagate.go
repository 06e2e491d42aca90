package main

import (
	"fmt"

	"github.com/matst80/slask-archive/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	propagateKind string
	propagateId   uint32
)

var propagateCmd = &cobra.Command{
	Use:   "propagate",
	Short: "Re-apply a series or service type exclusion to its items",
	Long: `Re-apply the stored main list exclusion of a series or service type to
the container and every item in it. Safe to run again after a partial save.
When rabbit.url is set the changes are published so serving nodes drop their
cached options.

Examples:
  archive propagate --kind series --id 12
  archive propagate --kind service-type --id 3`,
	RunE: runPropagate,
}

func init() {
	propagateCmd.Flags().StringVar(&propagateKind, "kind", string(types.EntitySeries), "container kind: series or service-type")
	propagateCmd.Flags().Uint32Var(&propagateId, "id", 0, "container id")
	propagateCmd.MarkFlagRequired("id")
}

func runPropagate(cmd *cobra.Command, _ []string) error {
	ref := types.EntityRef{Kind: types.EntityKind(propagateKind), Id: propagateId}
	if !ref.Kind.IsContainer() {
		return fmt.Errorf("--kind must be %q or %q", types.EntitySeries, types.EntityServiceType)
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	if cfg.Rabbit.Url != "" {
		if _, err = a.connectBus(); err != nil {
			return err
		}
	}

	if err = a.engine.Propagate(ctx, ref); err != nil {
		logger.Error("propagation incomplete", zap.Error(err))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "propagated %s %d\n", ref.Kind, ref.Id)
	return nil
}
