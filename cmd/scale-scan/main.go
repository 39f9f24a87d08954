// Command scale-scan discovers Sencor kitchen scales and optionally
// streams their raw notification payloads.
//
// A bare run scans for advertising scales and prints what it finds.
// With --connect it attaches to the first scale and prints every
// notification until interrupted, appending the same lines to --out.
//
// Usage:
//
//	go run ./cmd/scale-scan [--all] [--timeout 10s]
//	go run ./cmd/scale-scan --connect [--address AA:BB:CC:DD:EE:FF] [--out output.txt]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dstrnad/sencorscale/internal/ble"
	"github.com/dstrnad/sencorscale/internal/scale"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan for devices")
	all := flag.Bool("all", false, "list every advertising device, not just scales")
	connect := flag.Bool("connect", false, "connect to the first scale found and stream payloads")
	address := flag.String("address", "", "connect to this address instead of scanning by name (implies --connect)")
	out := flag.String("out", "output.txt", "file to append payload lines to while connected; empty disables")
	flag.Parse()

	adapter := ble.NewNativeAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("Failed to enable Bluetooth: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := *address
	if target == "" {
		devices, err := discover(ctx, adapter, *timeout, *all)
		if err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		if len(devices) == 0 {
			fmt.Println("No devices found. Is the scale powered on?")
			return
		}

		fmt.Printf("Found %d device(s):\n", len(devices))
		for _, d := range devices {
			name := d.Name
			if name == "" {
				name = "(no name)"
			}
			fmt.Printf("  %s  RSSI %4d  %s\n", d.Address, d.RSSI, name)
		}

		if !*connect {
			return
		}
		target = devices[0].Address
	}

	if err := stream(ctx, adapter, target, *out); err != nil {
		log.Fatalf("Stream failed: %v", err)
	}
	fmt.Println("Done.")
}

func discover(ctx context.Context, adapter *ble.NativeAdapter, timeout time.Duration, all bool) ([]ble.Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	match := func(d ble.Device) bool { return scale.MatchesAdvertisedName(d.Name) }
	if all {
		match = nil
	}

	fmt.Printf("Scanning for %s...\n", timeout)
	return adapter.Scan(scanCtx, match)
}

// stream connects to one scale and prints every payload until ctx is
// canceled or the link drops.
func stream(ctx context.Context, adapter *ble.NativeAdapter, address, outPath string) error {
	fmt.Printf("Connecting to %s...\n", address)
	conn, err := adapter.Connect(ctx, address)
	if err != nil {
		return err
	}
	defer conn.Close()

	channels, err := conn.Channels()
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return fmt.Errorf("no characteristics discovered")
	}

	var sink *os.File
	if outPath != "" {
		sink, err = os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open %s: %w", outPath, err)
		}
		defer sink.Close()
		fmt.Fprintf(sink, "--- Session started: %s ---\n", time.Now().Format(time.RFC3339))
		defer func() {
			fmt.Fprintf(sink, "--- Session ended: %s ---\n", time.Now().Format(time.RFC3339))
		}()
		fmt.Printf("Appending payloads to %s\n", outPath)
	}

	// Notifications arrive on stack goroutines.
	var mu sync.Mutex
	emit := func(payload []byte) {
		line := scale.FormatPayload(payload)
		mu.Lock()
		defer mu.Unlock()
		fmt.Println(line)
		if sink != nil {
			fmt.Fprintln(sink, line)
		}
	}

	subscribed := 0
	for _, ch := range channels {
		if err := ch.Subscribe(emit); err != nil {
			fmt.Printf("  skip %s: %v\n", ch.ID(), err)
			continue
		}
		fmt.Printf("  subscribed %s\n", ch.ID())
		subscribed++
	}
	defer func() {
		for _, ch := range channels {
			ch.Unsubscribe()
		}
	}()

	if subscribed == 0 {
		fmt.Println("No characteristic accepted a subscription, polling reads instead.")
		return pollReads(ctx, conn, channels, emit)
	}

	fmt.Println("Listening. Press Ctrl+C to stop.")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !conn.Connected() {
				return fmt.Errorf("link dropped")
			}
		}
	}
}

// pollReads is the fallback for stacks that refuse notification
// subscriptions: read every characteristic once a second and emit
// payloads that changed.
func pollReads(ctx context.Context, conn ble.Connection, channels []ble.Channel, emit func([]byte)) error {
	last := make(map[string]string)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !conn.Connected() {
				return fmt.Errorf("link dropped")
			}
			for _, ch := range channels {
				payload, err := ch.Read()
				if err != nil || len(payload) == 0 {
					continue
				}
				if last[ch.ID()] == string(payload) {
					continue
				}
				last[ch.ID()] = string(payload)
				emit(payload)
			}
		}
	}
}
