package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oicur0t/sematext2psql/internal/config"
	"github.com/oicur0t/sematext2psql/internal/fault"
	"github.com/oicur0t/sematext2psql/internal/importer"
	"github.com/oicur0t/sematext2psql/internal/source"
	"github.com/oicur0t/sematext2psql/internal/storage"
	"github.com/oicur0t/sematext2psql/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath  string
	printConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "sematext2psql",
	Short: "Import Sematext JSON logs from stdin into PostgreSQL",
	Long: `Reads json logs from stdin and imports them into postgres for analysis.

Helpful usage flow:

  To setup the database:

      psql -c 'create database sematext;'

  To download and extract logs from s3 (OSX brew example):

      brew install lz4 liblzf

      mkdir sematext_logs; cd sematext_logs/

      aws s3 cp --recursive s3://<bucket>/<account>/2022/10/21/12/ ./

      lzf -d *.json.lzf

      rg '"name":"sidekiq-' > filtered_logs.json

  To import into postgres:

      sematext2psql < filtered_logs.json

Every line must contain the marker (".json:" by default, as printed by rg
when searching several files) followed by one JSON log record. The first
malformed line or failed insert stops the import.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to an optional YAML configuration file")
	rootCmd.Flags().BoolVar(&printConfig, "print-config", false, "Print the effective configuration and exit")
	config.RegisterFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	// Load configuration
	cfg, err := config.LoadImporterConfig(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	if printConfig {
		return cfg.WriteYAML(cmd.OutOrStdout())
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting sematext2psql",
		zap.String("host", cfg.Postgres.Host),
		zap.String("database", cfg.Postgres.Database),
		zap.String("table", cfg.Postgres.Table),
		zap.Int("batch_size", cfg.Batching.MaxSize),
		zap.Bool("archive", cfg.Archive.Enabled()))

	// No deadline: a hung store connection hangs the import
	summary, err := importLogs(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Import failed",
			zap.String("kind", string(fault.CodeOf(err))),
			zap.Int64("lines", summary.Lines),
			zap.Int64("batches", summary.Batches),
			zap.Error(err))
	}

	logger.Info("Done.",
		zap.Int64("lines", summary.Lines),
		zap.Int64("records", summary.Records),
		zap.Int64("batches", summary.Batches),
		zap.Duration("duration", summary.Duration))
	return nil
}

// importLogs connects, prepares the table and runs the import. Resources are
// released before returning so a fatal log afterwards leaves nothing open.
func importLogs(ctx context.Context, cfg *config.ImporterConfig, logger *zap.Logger) (models.ImportSummary, error) {
	src, err := openSource(cfg.Input.Path, logger)
	if err != nil {
		return models.ImportSummary{}, err
	}
	defer src.Close()

	pg, err := storage.ConnectPostgres(ctx,
		storage.ConnString(cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database),
		cfg.Postgres.Table,
		logger)
	if err != nil {
		return models.ImportSummary{}, err
	}
	defer func() {
		if err := pg.Close(context.Background()); err != nil {
			logger.Warn("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}()

	if err := pg.EnsureSchema(ctx); err != nil {
		return models.ImportSummary{}, err
	}

	sinks := importer.MultiSink{importer.NewWriter(pg.Conn(), pg.Table(), logger)}

	if cfg.Archive.Enabled() {
		archive, err := storage.NewArchive(
			cfg.Archive.MongoDBURI,
			cfg.Archive.Database,
			cfg.Archive.Collection,
			cfg.Archive.Timeout,
			cfg.Archive.TTLDays,
			logger,
		)
		if err != nil {
			return models.ImportSummary{}, err
		}
		defer func() {
			if err := archive.Close(context.Background()); err != nil {
				logger.Warn("Failed to close MongoDB connection", zap.Error(err))
			}
		}()

		if err := archive.EnsureIndexes(ctx); err != nil {
			return models.ImportSummary{}, err
		}
		sinks = append(sinks, archive)
	}

	buffer := importer.NewBuffer(cfg.Batching.MaxSize, sinks, logger)
	imp := importer.NewImporter(src, importer.NewParser(cfg.Input.Marker), buffer, cfg.Input.ProgressEvery, logger)

	return imp.Run(ctx)
}

func openSource(path string, logger *zap.Logger) (source.LineSource, error) {
	if path == "" || path == "-" {
		logger.Info("Reading stdin...")
		return source.NewReaderSource(os.Stdin), nil
	}
	return source.OpenFile(path, logger)
}

// initLogger creates a configured zap logger
func initLogger(level string, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var loggerConfig zap.Config
	if format == "json" {
		loggerConfig = zap.NewProductionConfig()
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
	}

	loggerConfig.Level = zap.NewAtomicLevelAt(zapLevel)

	return loggerConfig.Build()
}
