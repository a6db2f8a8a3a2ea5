package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"polarmon/internal/adapter/gatt"
	"polarmon/internal/adapter/polar"
	"polarmon/internal/adapter/storage"
	"polarmon/internal/adapter/tui"
	"polarmon/internal/domain"
	"polarmon/internal/infra/config"
	"polarmon/internal/infra/logger"
	"polarmon/internal/infra/tracer"
	"polarmon/internal/usecase/eventbus"
	"polarmon/internal/usecase/monitor"
	"polarmon/internal/usecase/scheduling"
)

func main() {
	// Handle help flag first
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "scan":
		if err := runScan(); err != nil {
			fmt.Fprintf(os.Stderr, "scan: %v\n", err)
			os.Exit(1)
		}
	case "sessions":
		if err := runSessions(); err != nil {
			fmt.Fprintf(os.Stderr, "sessions: %v\n", err)
			os.Exit(1)
		}
	case "export":
		if err := runExport(); err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'polarmon --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`polarmon - Polar H10 heart rate and ECG monitor

USAGE:
    polarmon [COMMAND] [FLAGS]

COMMANDS:
    scan        Scan for nearby BLE heart rate sensors
    sessions    List recorded sessions
    export      Export a session to CSV
                Usage: polarmon export <session-id> [--stream hr|ecg]
    doctor      Run health checks on your setup

    (no command) - Record a monitoring session

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --device ADDR      Pin a specific device address
    --mode MODE        Monitoring mode: hr or ecg
    --visualize        Show the live terminal UI (the default)
    --headless         Record without the terminal UI
    --log-level LEVEL  debug, info, warn, or error

CONFIGURATION:
    Config file: ./config.yaml
    Environment: POLARMON_* variables override config

EXAMPLES:
    polarmon                          # Record heart rate with live view
    polarmon --mode ecg               # Record ECG as well
    polarmon --device A0:9E:1A:...    # Pin a specific strap
    polarmon scan                     # Find your strap's address
    polarmon export 01J3Z...          # Write session CSVs`)
}

// cliFlags holds optional CLI flags layered on top of the config file.
type cliFlags struct {
	Device    string
	Mode      string
	LogLevel  string
	Visualize bool
	Headless  bool
}

// showUI reports whether the live view should run. The UI is on by default;
// --headless turns it off and an explicit --visualize wins over both.
func (f cliFlags) showUI() bool {
	return f.Visualize || !f.Headless
}

// parseFlags extracts --device, --mode, --log-level, --visualize and
// --headless from os.Args.
func parseFlags() cliFlags {
	var flags cliFlags
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--device" && i+1 < len(os.Args):
			flags.Device = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--device="):
			flags.Device = strings.TrimPrefix(os.Args[i], "--device=")
		case os.Args[i] == "--mode" && i+1 < len(os.Args):
			flags.Mode = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--mode="):
			flags.Mode = strings.TrimPrefix(os.Args[i], "--mode=")
		case os.Args[i] == "--log-level" && i+1 < len(os.Args):
			flags.LogLevel = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--log-level="):
			flags.LogLevel = strings.TrimPrefix(os.Args[i], "--log-level=")
		case os.Args[i] == "--visualize":
			flags.Visualize = true
		case os.Args[i] == "--headless":
			flags.Headless = true
		}
	}
	return flags
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("POLARMON_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if flags.Device != "" {
		cfg.Device.Address = flags.Device
	}
	if flags.Mode != "" {
		cfg.Monitor.Mode = flags.Mode
	}
	if flags.LogLevel != "" {
		cfg.Logger.Level = flags.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run() error {
	// 1. Config
	flags := parseFlags()
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 4. Storage
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	// 5. BLE client
	backend, err := gatt.NewGobleBackend(logger.WithComponent(log, "gatt"))
	if err != nil {
		return fmt.Errorf("ble: %w", err)
	}
	defer backend.Close()

	client := polar.NewClient(polar.Config{
		Address:            cfg.Device.Address,
		NameFilter:         cfg.Device.NameFilter,
		ConnectTimeout:     cfg.Device.ConnectTimeout,
		WatchdogTimeout:    cfg.Monitor.WatchdogTimeout,
		ReconnectAttempts:  cfg.Monitor.ReconnectAttempts,
		ReconnectBaseDelay: cfg.Monitor.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Monitor.ReconnectMaxDelay,
	}, backend, bus, logger.WithComponent(log, "polar"))
	defer client.Close()

	// 6. Monitor
	mon := monitor.New(client, store, bus,
		logger.WithComponent(log, "monitor"),
		cfg.Monitor.QualityWindow, cfg.TUI.MaxPoints)

	// 7. Scheduled exports
	exporter := storage.NewCSVExporter(store, cfg.Storage.CSVDir,
		logger.WithComponent(log, "export"))
	sched := scheduling.NewScheduler(exporter, mon, bus,
		logger.WithComponent(log, "scheduler"))
	for _, job := range cfg.Export.Jobs {
		if err := sched.AddJob(scheduling.Job{
			Name: job.Name, Schedule: job.Schedule, Stream: job.Stream,
		}); err != nil {
			return fmt.Errorf("export job: %w", err)
		}
	}

	// 8. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched.Start(ctx)
	defer sched.Stop()

	mode := domain.MonitorMode(strings.ToLower(cfg.Monitor.Mode))
	log.Info("polarmon starting",
		"mode", string(mode),
		"device_filter", cfg.Device.NameFilter,
		"db", cfg.Storage.SQLitePath,
	)

	// 9. Record
	runErr := make(chan error, 1)
	go func() { runErr <- mon.Run(ctx, mode) }()

	if !flags.showUI() {
		return <-runErr
	}

	model := tui.NewMonitorModel(tui.MonitorDeps{
		Bus:        bus,
		Mode:       mode,
		DeviceName: cfg.Device.NameFilter,
		MaxPoints:  cfg.TUI.MaxPoints,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	model.SetProgramSender(func(msg tea.Msg) { p.Send(msg) })

	// Quit the UI when the recording ends first (e.g. reconnect exhaustion).
	monDone := make(chan error, 1)
	go func() {
		monDone <- <-runErr
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	cancel()

	select {
	case err := <-monDone:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out waiting for session shutdown")
	}
}

func runScan() error {
	flags := parseFlags()
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	backend, err := gatt.NewGobleBackend(logger.WithComponent(log, "gatt"))
	if err != nil {
		return fmt.Errorf("ble: %w", err)
	}
	defer backend.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, timeout := context.WithTimeout(ctx, cfg.Device.ScanTimeout)
	defer timeout()

	fmt.Printf("Scanning for %s...\n", cfg.Device.ScanTimeout)
	seen := make(map[string]bool)
	err = backend.Scan(ctx, false, func(d domain.DeviceInfo) {
		if seen[d.Address] || d.Name == "" {
			return
		}
		seen[d.Address] = true
		marker := " "
		if strings.HasPrefix(d.Name, cfg.Device.NameFilter) {
			marker = "*"
		}
		fmt.Printf("%s %-20s %-24s RSSI %d\n", marker, d.Address, d.Name, d.RSSI)
	})
	if err != nil {
		return err
	}
	if len(seen) == 0 {
		fmt.Println("No named devices found. Is the strap worn and moist?")
	}
	return nil
}

func runSessions() error {
	cfg, err := loadConfig(parseFlags())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	sessions, err := store.ListSessions(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No recorded sessions.")
		return nil
	}

	fmt.Printf("%-28s %-5s %-20s %s\n", "SESSION", "MODE", "STARTED", "DURATION")
	for _, s := range sessions {
		duration := "active"
		if !s.Active() {
			duration = s.EndedAt.Sub(s.StartedAt).Truncate(time.Second).String()
		}
		fmt.Printf("%-28s %-5s %-20s %s\n",
			s.ID, s.Mode, s.StartedAt.Local().Format("2006-01-02 15:04:05"), duration)
	}
	return nil
}

func runExport() error {
	if len(os.Args) < 3 || strings.HasPrefix(os.Args[2], "-") {
		fmt.Fprintln(os.Stderr, "Usage: polarmon export <session-id> [--stream hr|ecg]")
		os.Exit(1)
	}
	sessionID := os.Args[2]

	stream := ""
	for i := 3; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--stream" && i+1 < len(os.Args):
			stream = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--stream="):
			stream = strings.TrimPrefix(os.Args[i], "--stream=")
		}
	}

	cfg, err := loadConfig(parseFlags())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	exporter := storage.NewCSVExporter(store, cfg.Storage.CSVDir,
		logger.WithComponent(log, "export"))

	ctx := context.Background()
	var paths []string
	switch stream {
	case "hr":
		p, err := exporter.ExportHeartRate(ctx, sessionID)
		if err != nil {
			return err
		}
		paths = []string{p}
	case "ecg":
		p, err := exporter.ExportECG(ctx, sessionID)
		if err != nil {
			return err
		}
		paths = []string{p}
	case "":
		paths, err = exporter.ExportSession(ctx, sessionID)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown stream %q (want: hr, ecg)", stream)
	}

	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
