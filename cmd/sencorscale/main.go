package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dstrnad/sencorscale/internal/ble"
	"github.com/dstrnad/sencorscale/internal/config"
	"github.com/dstrnad/sencorscale/internal/history"
	"github.com/dstrnad/sencorscale/internal/logging"
	"github.com/dstrnad/sencorscale/internal/mqtt"
	"github.com/dstrnad/sencorscale/internal/scale"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/sencorscale/config.yaml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	if len(cfg.Devices) == 0 {
		log.Fatalf("no devices configured\n\nAdd at least one scale to %s:\n\ndevices:\n  - address: \"AA:BB:CC:DD:EE:FF\"\n    name: kitchen\n\nRun 'scale-scan' to find the address of a powered-on scale.", config.DefaultConfigPath())
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), version, "sencorscale")
	slog.SetDefault(logger)

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			log.Fatalf("history: %v", err)
		}
		defer store.Close()
		slog.Info("history enabled", "path", cfg.History.Path)
	}

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = mqtt.NewPublisher(cfg.MQTT, logger)
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		defer publisher.Disconnect()
		go connectPublisher(ctx, publisher, cfg)
	}

	manager := scale.NewManager(ble.NewNativeAdapter(), devices(cfg), timing(cfg))
	wireSinks(manager, publisher, store, cfg)

	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start BLE manager: %v\n\nEnsure the Bluetooth adapter is powered on and accessible.", err)
	}

	slog.Info("supervising scales", "devices", len(cfg.Devices))

	<-ctx.Done()
	slog.Info("shutting down")
	manager.Stop()
	slog.Info("goodbye")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// timing converts config seconds into supervisor durations. Zero values
// other than the scan interval pick up runtime defaults.
func timing(cfg *config.Config) scale.Timing {
	return scale.Timing{
		ScanInterval:   time.Duration(cfg.Scan.Interval) * time.Second,
		OffInterval:    time.Duration(cfg.Scan.OffInterval) * time.Second,
		ResolveTimeout: time.Duration(cfg.Scan.ResolveTimeout) * time.Second,
		ListenWindow:   time.Duration(cfg.Scan.ListenWindow) * time.Second,
	}
}

func devices(cfg *config.Config) []scale.Device {
	out := make([]scale.Device, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		out = append(out, scale.Device{Address: d.Address, Name: d.Name})
	}
	return out
}

// connectPublisher brings up the broker connection in the background so
// a slow or absent broker never delays BLE supervision.
func connectPublisher(ctx context.Context, publisher *mqtt.Publisher, cfg *config.Config) {
	if err := publisher.Connect(ctx); err != nil {
		slog.Warn("mqtt connect", "error", err)
		return
	}
	if !cfg.MQTT.Discovery {
		return
	}
	for _, d := range cfg.Devices {
		if err := publisher.PublishDiscovery(d.Address, d.Name); err != nil {
			slog.Warn("mqtt discovery", "address", d.Address, "error", err)
		}
	}
}

// wireSinks forwards propagated readings to the enabled sinks.
func wireSinks(manager *scale.Manager, publisher *mqtt.Publisher, store *history.Store, cfg *config.Config) {
	if publisher == nil && store == nil {
		return
	}
	for _, d := range cfg.Devices {
		name := d.Name
		manager.RegisterCallback(d.Address, func(address string, weight int, _ scale.Details) {
			if publisher != nil {
				if err := publisher.PublishReading(address, name, weight); err != nil {
					slog.Debug("publish reading", "address", address, "error", err)
				}
			}
			if store != nil {
				if err := store.Insert(address, name, weight, time.Now()); err != nil {
					slog.Warn("record reading", "address", address, "error", err)
				}
			}
		})
	}
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	mqttLine := "off"
	if cfg.MQTT.Enabled {
		mqttLine = fmt.Sprintf("on (%s:%d)", cfg.MQTT.Broker, cfg.MQTT.Port)
	}
	mode := "continuous"
	if cfg.Scan.Interval > 0 {
		mode = fmt.Sprintf("periodic (every %ds)", cfg.Scan.Interval)
	}

	fmt.Println("=== sencorscale ===")
	fmt.Printf("  Devices:  %d\n", len(cfg.Devices))
	for _, d := range cfg.Devices {
		fmt.Printf("    %s  %s\n", d.Address, d.Name)
	}
	fmt.Printf("  Mode:     %s\n", mode)
	fmt.Printf("  MQTT:     %s\n", mqttLine)
	fmt.Printf("  History:  %s\n", onOff(cfg.History.Enabled))
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("===================")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
