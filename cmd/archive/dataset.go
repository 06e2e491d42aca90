package main

import (
	"fmt"

	"github.com/matst80/slask-archive/pkg/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importFile string
	exportFile string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a dataset into the database",
	Long: `Import a json (or .json.gz) dataset of taxonomies, sources and items
into the configured database. Existing rows are updated in place and stored
author preferences survive items that omit showInMainList.

Examples:
  archive import --file sermons.json.gz`,
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the database as a dataset",
	Long: `Write the configured database to a json dataset; a .gz suffix compresses it.

Examples:
  archive export --file backup.json.gz`,
	RunE: runExport,
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "dataset file")
	importCmd.MarkFlagRequired("file")
	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "", "dataset file")
	exportCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.Database == "" {
		return fmt.Errorf("import needs a database")
	}
	ds, err := storage.LoadDataset(importFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := storage.OpenSQL(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	if err = store.Import(ctx, ds); err != nil {
		return err
	}
	logger.Info("dataset imported",
		zap.String("file", importFile),
		zap.String("database", cfg.Database),
		zap.Int("items", len(ds.Items)),
		zap.Int("sources", len(ds.Sources)))
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
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

	ds, err := a.store.Export(ctx)
	if err != nil {
		return err
	}
	if err = storage.SaveDataset(ds, exportFile); err != nil {
		return err
	}
	logger.Info("dataset exported", zap.String("file", exportFile), zap.Int("items", len(ds.Items)))
	return nil
}
