package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"amsdb/internal/api"
	"amsdb/internal/config"
	"amsdb/internal/logging"
)

// app is the state shared by every subcommand once the root has loaded the
// configuration.
type app struct {
	configPath string
	dataDir    string
	database   string

	cfg     *config.Config
	log     *zap.Logger
	manager *api.DatabaseManager
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:           "amsdb",
		Short:         "Append-only copy-on-write B+Tree key-value store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&a.dataDir, "data-dir", "", "directory holding database files (overrides storage.data_dir)")
	flags.StringVarP(&a.database, "db", "d", "", "database name (overrides storage.database)")

	root.AddCommand(
		newPutCmd(a),
		newGetCmd(a),
		newScanCmd(a),
		newStatsCmd(a),
		newVerifyCmd(a),
		newPagesCmd(a),
		newServeCmd(a),
	)
	return root, a
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.Storage.DataDir = a.dataDir
	}
	if a.database != "" {
		cfg.Storage.Database = a.database
	}

	log, err := logging.New(cfg.Logger)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.manager = api.NewDatabaseManager(cfg.Storage.DataDir, api.DatabaseConfig{
		CacheSize:   cfg.Storage.CacheSize,
		CacheShards: cfg.Storage.CacheShards,
		SyncWrites:  cfg.Storage.SyncWrites,
	}, log)
	return nil
}

// teardown closes every database the command opened. It runs whether or not
// the command failed.
func (a *app) teardown() error {
	if a.manager == nil {
		return nil
	}
	err := a.manager.CloseAll()
	_ = a.log.Sync()
	return err
}

// openDatabase opens the database selected by --db or the config.
func (a *app) openDatabase() (*api.DatabaseInstance, error) {
	return a.manager.OpenDatabase(a.cfg.Storage.Database)
}
