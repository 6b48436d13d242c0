package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oicur0t/sematext2psql/internal/importer"
	"github.com/oicur0t/sematext2psql/internal/storage"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. SEMATEXT2PSQL_POSTGRES_HOST
const EnvPrefix = "SEMATEXT2PSQL"

// PostgresConfig holds the destination connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	User     string `mapstructure:"user" yaml:"user"`
	Port     string `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	Table    string `mapstructure:"table" yaml:"table"`
}

// BatchingConfig holds batching configuration
type BatchingConfig struct {
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`
}

// InputConfig describes where lines come from and how they are split
type InputConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Marker        string `mapstructure:"marker" yaml:"marker"`
	ProgressEvery int64  `mapstructure:"progress_every" yaml:"progress_every"`
}

// ArchiveConfig holds the optional MongoDB archive settings
type ArchiveConfig struct {
	MongoDBURI string        `mapstructure:"mongodb_uri" yaml:"mongodb_uri"`
	Database   string        `mapstructure:"database" yaml:"database"`
	Collection string        `mapstructure:"collection" yaml:"collection"`
	TTLDays    int           `mapstructure:"ttl_days" yaml:"ttl_days"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Enabled reports whether batches are mirrored to MongoDB
func (a ArchiveConfig) Enabled() bool {
	return a.MongoDBURI != ""
}

// ImporterConfig represents the complete importer configuration
type ImporterConfig struct {
	Postgres  PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Batching  BatchingConfig `mapstructure:"batching" yaml:"batching"`
	Input     InputConfig    `mapstructure:"input" yaml:"input"`
	Archive   ArchiveConfig  `mapstructure:"archive" yaml:"archive"`
	LogLevel  string         `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string         `mapstructure:"log_format" yaml:"log_format"`
}

type flagSpec struct {
	name  string
	key   string
	usage string
}

var flagSpecs = []flagSpec{
	{"host", "postgres.host", "PostgreSQL host"},
	{"user", "postgres.user", "PostgreSQL user"},
	{"port", "postgres.port", "PostgreSQL port"},
	{"password", "postgres.password", "PostgreSQL password"},
	{"database", "postgres.database", "PostgreSQL database"},
	{"table", "postgres.table", "Destination table, optionally schema-qualified (analytics.logs); created if missing"},
	{"batch-size", "batching.max_size", "Records per INSERT statement"},
	{"input", "input.path", "Read lines from this file instead of stdin"},
	{"marker", "input.marker", "Token separating the line prefix from the JSON payload"},
	{"progress-every", "input.progress_every", "Log progress every N lines (0 disables)"},
	{"archive-uri", "archive.mongodb_uri", "Also archive batches to this MongoDB URI"},
	{"archive-database", "archive.database", "MongoDB archive database"},
	{"archive-collection", "archive.collection", "MongoDB archive collection"},
	{"archive-ttl-days", "archive.ttl_days", "Expire archived records after N days (0 keeps them)"},
	{"log-level", "log_level", "Log level (debug, info, warn, error)"},
	{"log-format", "log_format", "Log format (json or console)"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.password", "password")
	v.SetDefault("postgres.database", "sematext")
	v.SetDefault("postgres.table", "sematext_logs")
	v.SetDefault("batching.max_size", 10000)
	v.SetDefault("input.path", "")
	v.SetDefault("input.marker", ".json:")
	v.SetDefault("input.progress_every", 10000)
	v.SetDefault("archive.mongodb_uri", "")
	v.SetDefault("archive.database", "sematext")
	v.SetDefault("archive.collection", "sematext_logs")
	v.SetDefault("archive.ttl_days", 0)
	v.SetDefault("archive.timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// RegisterFlags adds the importer flags to fs, using the configuration defaults
func RegisterFlags(fs *pflag.FlagSet) {
	v := viper.New()
	setDefaults(v)

	for _, f := range flagSpecs {
		switch def := v.Get(f.key).(type) {
		case int:
			fs.Int(f.name, def, f.usage)
		default:
			fs.String(f.name, v.GetString(f.key), f.usage)
		}
	}
}

// LoadImporterConfig merges defaults, an optional config file, environment
// variables and flags (highest precedence) into an ImporterConfig
func LoadImporterConfig(configPath string, fs *pflag.FlagSet) (*ImporterConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for _, f := range flagSpecs {
			if flag := fs.Lookup(f.name); flag != nil {
				if err := v.BindPFlag(f.key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", f.name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config ImporterConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings that would otherwise fail mid-import
func (c *ImporterConfig) Validate() error {
	if c.Postgres.Table == "" {
		return fmt.Errorf("postgres.table is required")
	}
	if c.Batching.MaxSize < 1 || c.Batching.MaxSize > importer.MaxBatchSize {
		return fmt.Errorf("batching.max_size must be between 1 and %d, got %d", importer.MaxBatchSize, c.Batching.MaxSize)
	}
	if c.Input.Marker == "" {
		return fmt.Errorf("input.marker is required")
	}
	if c.Input.ProgressEvery < 0 {
		return fmt.Errorf("input.progress_every must not be negative")
	}
	if c.Archive.Enabled() {
		if c.Archive.Database == "" || c.Archive.Collection == "" {
			return fmt.Errorf("archive.database and archive.collection are required when the archive is enabled")
		}
		if c.Archive.TTLDays < 0 || c.Archive.TTLDays > storage.MaxTTLDays {
			return fmt.Errorf("archive.ttl_days must be between 0 and %d, got %d", storage.MaxTTLDays, c.Archive.TTLDays)
		}
	}
	return nil
}

// WriteYAML writes the configuration with secrets masked
func (c ImporterConfig) WriteYAML(w io.Writer) error {
	redacted := c
	if redacted.Postgres.Password != "" {
		redacted.Postgres.Password = "******"
	}
	if redacted.Archive.MongoDBURI != "" {
		redacted.Archive.MongoDBURI = "******"
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(redacted); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
