package config

import (
	"fmt"
	"strings"

	"polarmon/internal/domain"
	"polarmon/internal/usecase/scheduling"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateDevice(cfg, ve)
	validateMonitor(cfg, ve)
	validateStorage(cfg, ve)
	validateExport(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateTUI(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateDevice(cfg *Config, ve *ValidationError) {
	if cfg.Device.Address == "" && cfg.Device.NameFilter == "" {
		ve.Add("device.address or device.name_filter must be set")
	}
	if cfg.Device.ScanTimeout <= 0 {
		ve.Add("device.scan_timeout must be > 0")
	}
	if cfg.Device.ConnectTimeout <= 0 {
		ve.Add("device.connect_timeout must be > 0")
	}
}

func validateMonitor(cfg *Config, ve *ValidationError) {
	switch domain.MonitorMode(strings.ToLower(cfg.Monitor.Mode)) {
	case domain.ModeHR, domain.ModeECG:
	default:
		ve.Add("monitor.mode must be %q or %q, got %q", domain.ModeHR, domain.ModeECG, cfg.Monitor.Mode)
	}
	if cfg.Monitor.WatchdogTimeout <= 0 {
		ve.Add("monitor.watchdog_timeout must be > 0")
	}
	if cfg.Monitor.ReconnectAttempts <= 0 {
		ve.Add("monitor.reconnect_attempts must be > 0")
	}
	if cfg.Monitor.ReconnectBaseDelay <= 0 {
		ve.Add("monitor.reconnect_base_delay must be > 0")
	}
	if cfg.Monitor.ReconnectMaxDelay < cfg.Monitor.ReconnectBaseDelay {
		ve.Add("monitor.reconnect_max_delay must be >= monitor.reconnect_base_delay")
	}
	if cfg.Monitor.QualityWindow <= 1 {
		ve.Add("monitor.quality_window must be > 1")
	}
}

func validateStorage(cfg *Config, ve *ValidationError) {
	if cfg.Storage.SQLitePath == "" {
		ve.Add("storage.sqlite_path must not be empty")
	}
	if cfg.Storage.CSVDir == "" {
		ve.Add("storage.csv_dir must not be empty")
	}
}

func validateExport(cfg *Config, ve *ValidationError) {
	seen := map[string]bool{}
	for i, job := range cfg.Export.Jobs {
		if job.Name == "" {
			ve.Add("export.jobs[%d].name must not be empty", i)
		} else if seen[job.Name] {
			ve.Add("export.jobs[%d]: duplicate name %q", i, job.Name)
		} else {
			seen[job.Name] = true
		}
		// Same parser the scheduler registers with, so anything accepted
		// here is guaranteed to schedule.
		if _, err := scheduling.ParseSchedule(job.Schedule); err != nil {
			ve.Add("export.jobs[%d].schedule %q: %v", i, job.Schedule, err)
		}
		switch job.Stream {
		case "hr", "ecg":
		default:
			ve.Add("export.jobs[%d].stream must be \"hr\" or \"ecg\", got %q", i, job.Stream)
		}
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level must be debug, info, warn, or error, got %q", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter must be stdout or noop, got %q", cfg.Tracer.Exporter)
	}
}

func validateTUI(cfg *Config, ve *ValidationError) {
	if cfg.TUI.MaxPoints <= 1 {
		ve.Add("tui.max_points must be > 1")
	}
}
