// Package ble provides the transport layer for talking to BLE kitchen
// scales. It defines narrow capability interfaces over the underlying
// Bluetooth stack so the connection logic can be tested without radio
// hardware.
package ble

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Adapter implementations.
var (
	// ErrDeviceNotFound is returned by Resolve when the address did not
	// advertise within the timeout.
	ErrDeviceNotFound = errors.New("ble: device not found")
	// ErrNotConnected is returned by Connection methods after the link
	// has dropped.
	ErrNotConnected = errors.New("ble: not connected")
)

// Device describes a discovered BLE peripheral.
type Device struct {
	Address string
	Name    string
	RSSI    int
}

// Channel is a notification source on a connected peripheral
// (a GATT characteristic).
type Channel interface {
	// ID identifies the channel (the characteristic UUID).
	ID() string
	// Subscribe registers a callback for notifications on this channel.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe stops notifications. Safe to call when not subscribed.
	Unsubscribe() error
	// Read fetches the channel's current value, for channels that
	// support reading instead of notifying.
	Read() ([]byte, error)
}

// Connection represents an active link to a peripheral.
type Connection interface {
	// Connected reports whether the link is still up.
	Connected() bool
	// Channels enumerates the peripheral's characteristics as candidate
	// notification channels. The underlying stack does not expose
	// notify/indicate capability flags, so callers subscribe
	// best-effort and tolerate per-channel failures.
	Channels() ([]Channel, error)
	// Close terminates the connection.
	Close() error
}

// Adapter abstracts the BLE radio for testing.
type Adapter interface {
	// Enable powers on the radio. Must be called once before any other
	// method.
	Enable() error
	// Scan collects advertising peripherals accepted by match until ctx
	// is cancelled. A nil match accepts every advertisement.
	Scan(ctx context.Context, match func(Device) bool) ([]Device, error)
	// Resolve waits until the peripheral with the given address
	// advertises, or the timeout elapses.
	Resolve(ctx context.Context, address string, timeout time.Duration) (Device, error)
	// Connect establishes a connection to the peripheral with the given
	// address.
	Connect(ctx context.Context, address string) (Connection, error)
}
