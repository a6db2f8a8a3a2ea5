package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"polarmon/internal/adapter/storage"
	"polarmon/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()

	// Try to load config — some checks work without it.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config", Fn: checkConfig(cfgPath, cfgErr)},
		{Name: "Bluetooth adapter", Fn: checkBluetooth},
		{Name: "Device selection", Fn: checkDeviceSelection},
		{Name: "Data directory", Fn: checkDataDir},
		{Name: "Sample database", Fn: checkDatabase},
		{Name: "Disk space", Fn: checkDiskSpace},
	}

	fmt.Println("polarmon doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before recording.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\npolarmon should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! polarmon is ready to record.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfig returns a check that verifies the config file loads. A missing
// file is fine — defaults apply.
func checkConfig(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("no config file at %s — using defaults", cfgPath),
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and values",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkBluetooth verifies a Bluetooth stack is present for this platform.
func checkBluetooth(_ *config.Config) CheckResult {
	switch runtime.GOOS {
	case "linux":
		if _, err := os.Stat("/sys/class/bluetooth"); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: "no Bluetooth adapters found under /sys/class/bluetooth",
				Fix:     "Check the adapter is present and the btusb/bluetooth modules are loaded",
			}
		}
		entries, err := os.ReadDir("/sys/class/bluetooth")
		if err != nil || len(entries) == 0 {
			return CheckResult{
				Status:  StatusFail,
				Message: "Bluetooth subsystem present but no adapters registered",
				Fix:     "Run 'hciconfig -a' or 'bluetoothctl list' to inspect adapters",
			}
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("adapter(s): %s", strings.Join(names, ", ")),
		}
	case "darwin":
		return CheckResult{
			Status:  StatusPass,
			Message: "using CoreBluetooth — grant Bluetooth permission on first run",
		}
	default:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("BLE is not supported on %s", runtime.GOOS),
		}
	}
}

// checkDeviceSelection verifies the config can actually select a strap.
func checkDeviceSelection(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check — config not loaded"}
	}
	if cfg.Device.Address != "" {
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("pinned to device %s", cfg.Device.Address),
		}
	}
	if cfg.Device.NameFilter == "" {
		return CheckResult{
			Status:  StatusFail,
			Message: "neither device.address nor device.name_filter is set",
			Fix:     "Run 'polarmon scan' and set device.address in config.yaml",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("matching by name prefix %q", cfg.Device.NameFilter),
	}
}

// checkDataDir verifies the CSV export directory is writable.
func checkDataDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check — config not loaded"}
	}

	absDir, _ := filepath.Abs(cfg.Storage.CSVDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s: %v", absDir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", absDir),
		}
	}

	testFile := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 755 %s", absDir),
		}
	}
	os.Remove(testFile)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("export directory %s writable", absDir),
	}
}

// checkDatabase opens the sample database and counts recorded sessions.
func checkDatabase(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check — config not loaded"}
	}

	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot create database directory: %v", err),
			}
		}
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open %s: %v", cfg.Storage.SQLitePath, err),
			Fix:     "Check the file is a SQLite database and not locked by another process",
		}
	}
	defer store.Close()

	sessions, err := store.ListSessions(context.Background())
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("database opened but query failed: %v", err),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s OK, %d session(s) recorded", cfg.Storage.SQLitePath, len(sessions)),
	}
}

// checkDiskSpace checks available disk space for the database directory.
func checkDiskSpace(cfg *config.Config) CheckResult {
	dataDir := "./data"
	if cfg != nil {
		dataDir = filepath.Dir(cfg.Storage.SQLitePath)
	}
	absDir, _ := filepath.Abs(dataDir)

	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return CheckResult{
			Status:  StatusPass,
			Message: "data directory does not exist yet — space check skipped",
		}
	}

	out, err := exec.Command("df", "-h", absDir).Output()
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: "could not determine disk space (df command failed)",
		}
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}

	available := fields[3]
	usePercent := fields[4]
	var pct int
	fmt.Sscanf(strings.TrimSuffix(usePercent, "%"), "%d", &pct)

	if pct >= 95 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("disk almost full: %s used, %s available", usePercent, available),
			Fix:     "Free up disk space or move storage.sqlite_path to another partition",
		}
	}
	if pct >= 85 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("disk usage high: %s used, %s available", usePercent, available),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("disk usage: %s used, %s available", usePercent, available),
	}
}
