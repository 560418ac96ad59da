// Package config loads the flow host configuration (YAML file, then ZFLOW_*
// environment overrides) and defines the opaque per-node Configuration passed
// to node setup.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ZFLOW_LOG_LEVEL=debug.
const EnvPrefix = "ZFLOW"

// Config is what a flownode process runs: where it logs and which dataflow
// it hosts.
type Config struct {
    AppName  string         `mapstructure:"app_name"`
    Log      LogConfig      `mapstructure:"log"`
    Dataflow DataflowConfig `mapstructure:"dataflow"`
    State    StateConfig    `mapstructure:"state"`
}

// StateConfig sizes the in-process store shared by stateful nodes and the
// node registry.
type StateConfig struct {
    Shards   int    `mapstructure:"shards"`
    MaxBytes uint64 `mapstructure:"max_bytes"` // 0 = unbounded
    // SweepInterval paces the expiry janitor; negative disables it.
    SweepInterval time.Duration `mapstructure:"sweep_interval"`
    // RecordRetention keeps a terminated node's record this long; 0 keeps it
    // for the life of the process.
    RecordRetention time.Duration `mapstructure:"record_retention"`
}

// LogConfig selects level, encoder and sinks for the process logger.
type LogConfig struct {
    Level  string `mapstructure:"level"`  // debug|info|warn|error
    Format string `mapstructure:"format"` // console|json
    // Outputs are "stdout", "stderr" or file paths.
    Outputs     []string       `mapstructure:"outputs"`
    Rotation    RotationConfig `mapstructure:"rotation"`
    Development bool           `mapstructure:"development"`
}

// RotationConfig adds a size-rotated log file next to Outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// Default is the configuration used when no file or env var says otherwise.
func Default() *Config {
    return &Config{
        AppName: "flownode",
        Log: LogConfig{
            Level:   "info",
            Format:  "console",
            Outputs: []string{"stdout"},
            Rotation: RotationConfig{
                Filename:   "logs/flownode.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Dataflow: DataflowConfig{Name: "dataflow", ChannelCapacity: 16},
        State: StateConfig{
            Shards:          64,
            SweepInterval:   time.Second,
            RecordRetention: 5 * time.Minute,
        },
    }
}

// defaults flattens d into viper keys. Keys must be known to viper up front or
// AutomaticEnv never consults the environment for them.
func defaults(d *Config) map[string]any {
    return map[string]any{
        "app_name":                  d.AppName,
        "log.level":                 d.Log.Level,
        "log.format":                d.Log.Format,
        "log.outputs":               d.Log.Outputs,
        "log.development":           d.Log.Development,
        "log.rotation.enable":       d.Log.Rotation.Enable,
        "log.rotation.filename":     d.Log.Rotation.Filename,
        "log.rotation.max_size_mb":  d.Log.Rotation.MaxSizeMB,
        "log.rotation.max_backups":  d.Log.Rotation.MaxBackups,
        "log.rotation.max_age_days": d.Log.Rotation.MaxAgeDays,
        "log.rotation.compress":     d.Log.Rotation.Compress,
        "dataflow.name":             d.Dataflow.Name,
        "dataflow.channel_capacity": d.Dataflow.ChannelCapacity,
        "state.shards":              d.State.Shards,
        "state.max_bytes":           d.State.MaxBytes,
        "state.sweep_interval":      d.State.SweepInterval,
        "state.record_retention":    d.State.RecordRetention,
    }
}

// searchPaths are tried in order for flownode.yaml when no path is given.
func searchPaths() []string {
    dirs := []string{".", "./configs"}
    if home, err := os.UserHomeDir(); err == nil {
        dirs = append(dirs, filepath.Join(home, ".flownode"))
    }
    return dirs
}

// Load builds a Config from path, or from $ZFLOW_CONFIG, or from the first
// flownode.yaml found in searchPaths. A missing file is not an error when no
// explicit path was given.
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix(EnvPrefix)
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()
    for k, val := range defaults(cfg) { v.SetDefault(k, val) }

    if path == "" { path = os.Getenv(EnvPrefix + "_CONFIG") }
    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("flownode")
        for _, dir := range searchPaths() { v.AddConfigPath(dir) }
    }

    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) { return nil, fmt.Errorf("read config: %w", err) }
    }
    if err := v.Unmarshal(cfg); err != nil { return nil, fmt.Errorf("decode config: %w", err) }
    if err := cfg.check(); err != nil { return nil, err }
    return cfg, nil
}

// check rejects unusable settings and fills the blanks viper leaves behind.
func (c *Config) check() error {
    switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" { c.Log.Format = "console" }
    if len(c.Log.Outputs) == 0 { c.Log.Outputs = []string{"stdout"} }
    if c.State.Shards < 0 { return fmt.Errorf("invalid state.shards: %d", c.State.Shards) }
    if c.State.RecordRetention < 0 { return fmt.Errorf("invalid state.record_retention: %s", c.State.RecordRetention) }
    return c.Dataflow.normalize()
}
