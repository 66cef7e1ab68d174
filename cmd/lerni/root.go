package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/agenda"
	"github.com/torenunez/lerni/internal/cache/redis"
	"github.com/torenunez/lerni/internal/capture"
	"github.com/torenunez/lerni/internal/kg"
	"github.com/torenunez/lerni/internal/kg/neo4j"
	"github.com/torenunez/lerni/internal/ledger"
	"github.com/torenunez/lerni/internal/metrics"
	"github.com/torenunez/lerni/internal/review"
	"github.com/torenunez/lerni/internal/storage/sqlite"
	"github.com/torenunez/lerni/pkg/config"
	"github.com/torenunez/lerni/pkg/logger"
)

// app holds what every command needs. It is filled in by setup before any
// command runs.
type app struct {
	configPath string
	dbPath     string

	cfg     *config.Config
	store   *sqlite.Client
	graph   *kg.Graph
	ledger  *ledger.Ledger
	reviews *review.Service
	agenda  *agenda.Agenda

	neo4j *neo4j.Client
	redis *redis.Client

	// now is read once per invocation and passed down.
	now time.Time
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lerni",
		Short: "Track what you understand and when to review it",
		Long: `lerni keeps questions, versioned answers and a concept graph in a
local SQLite database, and schedules reviews with SM-2 spaced repetition.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config.toml")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to the SQLite database (overrides config)")

	root.AddCommand(
		newNewCmd(a),
		newSnapshotCmd(a),
		newEditCmd(a),
		newShowCmd(a),
		newHistoryCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
		newSearchCmd(a),
		newAssignCmd(a),
		newUnassignCmd(a),
		newMetaCmd(a),
		newSuggestCmd(a),
		newReviewCmd(a),
		newSkipCmd(a),
		newTodayCmd(a),
		newNotifyCmd(a),
		newExportCmd(a),
		newConceptCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	a.now = time.Now()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.dbPath != "" {
		cfg.SQLite.Path = a.dbPath
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		return err
	}
	metrics.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	a.store = store
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	var graphOpts []kg.Option
	if cfg.Neo4j.Enabled {
		client, err := neo4j.NewClient(ctx, cfg.Neo4j)
		if err != nil {
			logger.Warn("Neo4j mirror unavailable", zap.Error(err))
		} else {
			a.neo4j = client
			graphOpts = append(graphOpts, kg.WithMirror(client))
		}
	}

	var (
		ledgerOpts []ledger.Option
		reviewOpts []review.Option
		agendaOpts []agenda.Option
	)
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis, cfg.RedisTTL(), cfg.SQLite.Path)
		if err != nil {
			logger.Warn("Redis cache unavailable", zap.Error(err))
		} else {
			a.redis = client
			ledgerOpts = append(ledgerOpts, ledger.WithInvalidator(client))
			reviewOpts = append(reviewOpts, review.WithInvalidator(client))
			agendaOpts = append(agendaOpts, agenda.WithCache(client))
		}
	}

	a.graph = kg.NewGraph(store, graphOpts...)
	a.ledger = ledger.New(store, ledgerOpts...)
	a.reviews = review.New(store, reviewOpts...)
	a.agenda = agenda.New(a.ledger, agendaOpts...)

	logger.Debug("Store ready", zap.String("path", cfg.SQLite.Path))
	return nil
}

// close releases everything setup opened. It is safe after a failed setup.
func (a *app) close() {
	if a.cfg != nil && a.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics", zap.Error(err))
		}
	}
	if a.neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.neo4j.Close(ctx); err != nil {
			logger.Warn("Failed to close Neo4j driver", zap.Error(err))
		}
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	logger.Sync()
}

// source picks how free text is collected.
func (a *app) source(useEditor bool) capture.Source {
	if useEditor {
		return capture.Editor{Command: a.cfg.Editor()}
	}
	return capture.Inline{}
}
