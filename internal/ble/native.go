package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// NativeAdapter wraps tinygo-org/bluetooth (BlueZ on Linux,
// CoreBluetooth on macOS). On macOS, BLE device addresses are
// CoreBluetooth UUIDs rather than MAC addresses; the Address fields in
// config and Device structs store whichever form the platform uses.
type NativeAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*nativeConnection // keyed by uppercased address
}

// NewNativeAdapter creates an adapter over the platform Bluetooth stack.
func NewNativeAdapter() *NativeAdapter {
	return &NativeAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*nativeConnection),
	}
}

func (a *NativeAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// The stack fires this callback with connected=false when a
	// peripheral drops. Flag the tracked connection so Connected()
	// reflects the real link state.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		key := strings.ToUpper(device.Address.String())
		a.mu.Lock()
		conn := a.connections[key]
		a.mu.Unlock()
		if conn != nil {
			conn.markDown()
		}
	})

	return nil
}

// scan runs one BLE scan, feeding each advertisement to visit; returning
// false from visit ends the scan early. The scan also ends when ctx is
// done.
func (a *NativeAdapter) scan(ctx context.Context, visit func(Device) bool) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		d := Device{
			Address: result.Address.String(),
			Name:    result.LocalName(),
			RSSI:    int(result.RSSI),
		}
		if !visit(d) {
			adapter.StopScan()
		}
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *NativeAdapter) Scan(ctx context.Context, match func(Device) bool) ([]Device, error) {
	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	err := a.scan(ctx, func(d Device) bool {
		if match != nil && !match(d) {
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[d.Address] {
			return true
		}
		seen[d.Address] = true
		devices = append(devices, d)
		return true
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (a *NativeAdapter) Resolve(ctx context.Context, address string, timeout time.Duration) (Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found Device
		ok    bool
	)
	err := a.scan(scanCtx, func(d Device) bool {
		if !strings.EqualFold(d.Address, address) {
			return true
		}
		mu.Lock()
		found = d
		ok = true
		mu.Unlock()
		return false
	})
	if err != nil {
		return Device{}, err
	}

	mu.Lock()
	defer mu.Unlock()
	if !ok {
		if ctx.Err() != nil {
			return Device{}, fmt.Errorf("ble: resolve %s: %w", address, ctx.Err())
		}
		return Device{}, fmt.Errorf("ble: resolve %s: %w", address, ErrDeviceNotFound)
	}
	return found, nil
}

func (a *NativeAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	// Address.Set parses a MAC on Linux and a CoreBluetooth UUID on macOS.
	var addr bluetooth.Address
	addr.Set(address)

	// The stack's Connect blocks internally with its own timeout. We wrap
	// it so ctx cancellation returns immediately, even though the
	// underlying attempt cannot be aborted from here.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		conn := &nativeConnection{device: result.device}

		// Track the connection so the adapter-level disconnect handler
		// can flag it when the link drops.
		a.mu.Lock()
		a.connections[strings.ToUpper(address)] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that NativeAdapter implements Adapter.
var _ Adapter = (*NativeAdapter)(nil)

type nativeConnection struct {
	device bluetooth.Device

	mu   sync.Mutex
	down bool
}

func (c *nativeConnection) markDown() {
	c.mu.Lock()
	c.down = true
	c.mu.Unlock()
}

func (c *nativeConnection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.down
}

func (c *nativeConnection) Channels() ([]Channel, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}

	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	var channels []Channel
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics: %w", err)
		}
		for i := range chars {
			channels = append(channels, &nativeChannel{char: &chars[i]})
		}
	}
	return channels, nil
}

func (c *nativeConnection) Close() error {
	c.markDown()
	return c.device.Disconnect()
}

var _ Connection = (*nativeConnection)(nil)

type nativeChannel struct {
	char *bluetooth.DeviceCharacteristic
}

func (c *nativeChannel) ID() string {
	return c.char.UUID().String()
}

func (c *nativeChannel) Subscribe(callback func(data []byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		callback(buf)
	})
}

// Unsubscribe disables notifications by passing a nil callback to the
// stack.
func (c *nativeChannel) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}

func (c *nativeChannel) Read() ([]byte, error) {
	buf := make([]byte, 512)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

var _ Channel = (*nativeChannel)(nil)
