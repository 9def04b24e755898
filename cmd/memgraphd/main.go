// Command memgraphd runs the storage daemon: it recovers the graph from
// the durability directory, attaches the WAL, and keeps the background
// collector running until signalled. The recover and gc subcommands run
// the respective pipelines once and exit.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/infgeoax/memgraph/internal/accessor"
	"github.com/infgeoax/memgraph/internal/config"
	"github.com/infgeoax/memgraph/internal/gc"
	"github.com/infgeoax/memgraph/internal/recovery"
	"github.com/infgeoax/memgraph/internal/telemetry"
	"github.com/infgeoax/memgraph/internal/wal"
)

var configPath string

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "memgraphd",
		Short:        "Property-graph storage daemon",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	root.AddCommand(newRecoverCmd(), newGcCmd())
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := telemetry.NewLogger(telemetry.Config{
		Level:      telemetry.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	fs := afero.NewOsFs()

	storage := accessor.NewStorage(accessor.Options{WorkerID: cfg.WorkerID, Logger: log})
	res, err := recovery.Recover(fs, storage, cfg.SnapshotDir(), cfg.WalDir(), log)
	if err != nil {
		log.Error().Err(err).Msg("recovery failed")
		return err
	}
	log.Info().Str("outcome", res.Outcome.String()).Msg("storage recovered")

	writer, err := wal.NewWriter(fs, cfg.WalDir(), wal.WriterOptions{Logger: log})
	if err != nil {
		log.Error().Err(err).Msg("cannot open wal")
		return err
	}
	storage.AttachWal(writer)

	collector := gc.New(storage, cfg.GCInterval.Std(), log)
	collector.Start()
	log.Info().Int("worker", cfg.WorkerID).Msg("storage daemon running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	collector.Stop()
	if cfg.SnapshotOnExit {
		if _, err := storage.TakeSnapshot(fs, cfg.SnapshotDir(), uuid.New()); err != nil {
			log.Warn().Err(err).Msg("exit snapshot failed")
		}
	}
	return writer.Close()
}

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Replay snapshots and WAL, report the outcome, and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := telemetry.NewLogger(telemetry.Config{
				Level:      telemetry.Level(cfg.Log.Level),
				JSONOutput: cfg.Log.JSON,
			})
			fs := afero.NewOsFs()
			storage := accessor.NewStorage(accessor.Options{WorkerID: cfg.WorkerID, Logger: log})
			res, err := recovery.Recover(fs, storage, cfg.SnapshotDir(), cfg.WalDir(), log)
			if err != nil {
				return err
			}
			cmd.Printf("outcome=%s snapshot=%q vertices=%d edges=%d deltas=%d\n",
				res.Outcome, res.SnapshotFile, res.Vertices, res.Edges, res.Deltas)
			return nil
		},
	}
}

func newGcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Recover the graph, run one collection pass, and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := telemetry.NewLogger(telemetry.Config{
				Level:      telemetry.Level(cfg.Log.Level),
				JSONOutput: cfg.Log.JSON,
			})
			fs := afero.NewOsFs()
			storage := accessor.NewStorage(accessor.Options{WorkerID: cfg.WorkerID, Logger: log})
			if _, err := recovery.Recover(fs, storage, cfg.SnapshotDir(), cfg.WalDir(), log); err != nil {
				return err
			}
			pruned := gc.New(storage, cfg.GCInterval.Std(), log).Collect()
			cmd.Printf("pruned=%d\n", pruned)
			return nil
		},
	}
}

func main() {
	if err := newRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
