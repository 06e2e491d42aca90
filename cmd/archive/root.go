package main

import (
	"github.com/matst80/slask-archive/pkg/common"
	"github.com/matst80/slask-archive/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "archive",
	Short: "Faceted sermon archive",
	Long: `Serves filter options and listings for a sermon archive and keeps the
main list visibility of items in line with their series and service types.

Configuration is read from archive.yaml (. or /etc/slask-archive) and
ARCHIVE_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default archive.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "debug logging and error codes in responses")
	rootCmd.AddCommand(serveCmd, propagateCmd, optionsCmd, importCmd, exportCmd, tokenCmd)
}

// loadConfig reads the configuration and builds the logger for a command.
func loadConfig() (*config.Config, *zap.Logger, error) {
	v := config.New()
	if debugFlag {
		v.Set("debug", true)
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := common.NewLogger(cfg.Debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
