package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dougsko/rx320d/pkg/config"
	"github.com/dougsko/rx320d/pkg/logging"
	"github.com/dougsko/rx320d/pkg/verbose"
)

var (
	configPath = flag.String("config", "", "Configuration file path (defaults are used when empty)")
	port       = flag.Int("port", 4665, "Control port")
	sleep      = flag.Float64("sleep", 0.2, "Seconds between signal strength polls")
	mock       = flag.Bool("mock", false, "Use the simulated receiver instead of a serial port")
	verboseLog = flag.Bool("verbose", false, "Log every frame sent to and received from the receiver")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"
)

func init() {
	flag.IntVar(port, "p", 4665, "Control port (shorthand)")
	flag.Float64Var(sleep, "s", 0.2, "Seconds between signal strength polls (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [serial-device]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}

// loadConfig reads the config file, then applies flags the user set explicitly
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port", "p":
			cfg.Control.Port = *port
		case "sleep", "s":
			cfg.Radio.PollIntervalMs = int((time.Duration(*sleep * float64(time.Second))) / time.Millisecond)
		case "mock":
			cfg.Radio.Mock = *mock
		case "verbose":
			cfg.Logging.Level = "debug"
		}
	})

	if flag.NArg() > 0 {
		cfg.Radio.Device = flag.Arg(0)
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("rx320d version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logging system
	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()
	verbose.SetEnabled(*verboseLog)

	logging.Info("main", fmt.Sprintf("rx320d version %s starting...", Version))
	if cfg.Radio.Mock {
		logging.Info("main", "Radio: simulated receiver")
	} else {
		logging.Info("main", fmt.Sprintf("Radio: %s at %d baud", cfg.Radio.Device, cfg.Radio.BaudRate))
	}
	logging.Info("main", fmt.Sprintf("Control port: %s", cfg.ControlAddress()))
	if cfg.Web.Enabled {
		logging.Info("main", fmt.Sprintf("HTTP API: http://%s", cfg.WebAddress()))
	}

	daemon, err := NewRX320Daemon(cfg)
	if err != nil {
		logging.Error("main", fmt.Sprintf("Failed to create daemon: %v", err))
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Error("main", fmt.Sprintf("Failed to start daemon: %v", err))
		daemon.Stop()
		os.Exit(1)
	}

	logging.Info("main", "rx320d started successfully")

	exitCode := 0
	select {
	case <-sigChan:
		logging.Info("main", "Shutting down...")
	case <-daemon.Done():
		logging.Error("main", fmt.Sprintf("Receiver link lost: %v", daemon.Err()))
		exitCode = 1
	}

	if err := daemon.Stop(); err != nil && exitCode == 0 {
		logging.Error("main", fmt.Sprintf("Error during shutdown: %v", err))
		exitCode = 1
	}

	logging.Info("main", "rx320d stopped")
	logging.CloseGlobalLogger()
	os.Exit(exitCode)
}
