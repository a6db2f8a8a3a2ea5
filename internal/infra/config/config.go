package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"polarmon/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Monitor MonitorConfig `yaml:"monitor"`
	Storage StorageConfig `yaml:"storage"`
	Export  ExportConfig  `yaml:"export"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
	TUI     TUIConfig     `yaml:"tui"`
}

// DeviceConfig selects and times the target sensor.
type DeviceConfig struct {
	// Address pins a specific peripheral (MAC on Linux, UUID on macOS).
	// When empty, discovery falls back to NameFilter matching.
	Address string `yaml:"address,omitempty"`
	// NameFilter is a prefix match against the advertised local name.
	NameFilter     string        `yaml:"name_filter"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MonitorConfig holds session behavior settings.
type MonitorConfig struct {
	Mode string `yaml:"mode"` // "hr" or "ecg"
	// WatchdogTimeout triggers a reconnect when no samples arrive for this long.
	WatchdogTimeout    time.Duration `yaml:"watchdog_timeout"`
	ReconnectAttempts  int           `yaml:"reconnect_attempts"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	// QualityWindow is the ring size for quality analysis.
	QualityWindow int `yaml:"quality_window"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	CSVDir     string `yaml:"csv_dir"`
}

// ExportConfig holds scheduled export settings.
type ExportConfig struct {
	Jobs []ExportJobConfig `yaml:"jobs,omitempty"`
}

// ExportJobConfig defines one cron-driven CSV export.
type ExportJobConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression
	Stream   string `yaml:"stream"`   // "hr" or "ecg"
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// TUIConfig holds terminal visualization settings.
type TUIConfig struct {
	// MaxPoints is the width of the heart-rate sparkline window.
	MaxPoints int `yaml:"max_points"`
}

// Defaults returns a Config with sensible defaults matching a stock Polar H10.
func Defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			NameFilter:     "Polar H10",
			ScanTimeout:    10 * time.Second,
			ConnectTimeout: 20 * time.Second,
		},
		Monitor: MonitorConfig{
			Mode:               string(domain.ModeHR),
			WatchdogTimeout:    5 * time.Second,
			ReconnectAttempts:  5,
			ReconnectBaseDelay: 1 * time.Second,
			ReconnectMaxDelay:  60 * time.Second,
			QualityWindow:      60,
		},
		Storage: StorageConfig{
			SQLitePath: "data/polarmon.db",
			CSVDir:     "data",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		TUI: TUIConfig{
			MaxPoints: 100,
		},
	}
}

// Load reads the config file at path, applies environment overrides, and
// validates the result. A missing file is not an error: defaults plus
// environment overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides applies POLARMON_* environment variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLARMON_DEVICE_ADDRESS"); v != "" {
		cfg.Device.Address = v
	}
	if v := os.Getenv("POLARMON_DEVICE_NAME_FILTER"); v != "" {
		cfg.Device.NameFilter = v
	}
	if v := os.Getenv("POLARMON_MONITOR_MODE"); v != "" {
		cfg.Monitor.Mode = v
	}
	if v := os.Getenv("POLARMON_STORAGE_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("POLARMON_STORAGE_CSV_DIR"); v != "" {
		cfg.Storage.CSVDir = v
	}
	if v := os.Getenv("POLARMON_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("POLARMON_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("POLARMON_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("POLARMON_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("POLARMON_MONITOR_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Monitor.ReconnectAttempts = n
		}
	}
	if v := os.Getenv("POLARMON_MONITOR_WATCHDOG_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Monitor.WatchdogTimeout = d
		}
	}
}
