// Package config loads the YAML configuration of the rfield binary.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/pipeline"
	"gopkg.in/yaml.v3"
)

// Config is the top-level structure of the configuration file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Engine   EngineConfig   `yaml:"engine"`
	Server   ServerConfig   `yaml:"server"`
	Field    FieldConfig    `yaml:"field"`
	Pipeline *pipeline.Spec `yaml:"pipeline"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
}

type EngineConfig struct {
	DataDir           string   `yaml:"data_dir"`
	SnapshotFilename  string   `yaml:"snapshot_filename"`
	AutoSaveInterval  Duration `yaml:"auto_save_interval"`
	AutoSaveThreshold int64    `yaml:"auto_save_threshold"`
	ParallelThreshold int      `yaml:"parallel_threshold"`
}

type ServerConfig struct {
	HTTPAddr     string   `yaml:"http_addr"`
	AuthToken    string   `yaml:"auth_token"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// FieldConfig declares a field registered when the server starts, unless a
// snapshot already holds one with the same name. An empty Name declares
// nothing.
type FieldConfig struct {
	Name               string `yaml:"name"`
	engine.FieldConfig `yaml:",inline"`
	Interpolate        bool `yaml:"interpolate"`
}

// DefaultConfig returns a configuration for a local, persistent server.
func DefaultConfig() Config {
	opts := engine.DefaultOptions("rfield-data")
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			DataDir:           opts.DataDir,
			SnapshotFilename:  opts.SnapshotFilename,
			AutoSaveInterval:  Duration(opts.AutoSaveInterval),
			AutoSaveThreshold: opts.AutoSaveThreshold,
			ParallelThreshold: opts.ParallelThreshold,
		},
		Server: ServerConfig{
			HTTPAddr:     ":9091",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(5 * time.Minute),
		},
	}
}

// Load reads the YAML configuration file using strict parsing. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be caught by decoding.
func (c Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format '%s'", c.Log.Format)
	}
	if c.Engine.AutoSaveInterval < 0 {
		return fmt.Errorf("config: auto_save_interval must not be negative")
	}
	if c.Field.Name != "" && len(c.Field.CellSize) == 0 {
		return fmt.Errorf("config: field '%s' has no cell_size", c.Field.Name)
	}
	return nil
}

// EngineOptions converts the engine section.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		DataDir:           c.Engine.DataDir,
		SnapshotFilename:  c.Engine.SnapshotFilename,
		AutoSaveInterval:  c.Engine.AutoSaveInterval.Std(),
		AutoSaveThreshold: c.Engine.AutoSaveThreshold,
		ParallelThreshold: c.Engine.ParallelThreshold,
	}
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level '%s'", l.Level)
	}
}

// NewLogger builds the logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
