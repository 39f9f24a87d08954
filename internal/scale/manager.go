package scale

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dstrnad/sencorscale/internal/ble"
)

// Device identifies a configured scale. Address is the immutable BLE
// identity; Name is a display label and may change.
type Device struct {
	Address string
	Name    string
}

// Manager runs one supervisor per known scale and owns the structures
// they share: the zero-suppression filter and the weight cache. Each
// address's cache entry is written only by its own supervisor, so the
// supervisors never contend beyond the map locks.
type Manager struct {
	adapter ble.Adapter
	timing  Timing
	filter  *Filter
	cache   *Cache

	mu      sync.Mutex
	devices map[string]string // address → display name
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a manager for the given devices. Supervisors are
// not spawned until Start.
func NewManager(adapter ble.Adapter, devices []Device, timing Timing) *Manager {
	m := &Manager{
		adapter: adapter,
		timing:  timing.withDefaults(),
		filter:  NewFilter(),
		cache:   NewCache(),
		devices: make(map[string]string),
	}
	for _, d := range devices {
		m.devices[d.Address] = d.Name
	}
	return m
}

// Start enables the adapter and spawns a supervisor for every known
// device. Calling Start again without an intervening Stop spawns a
// second supervisor set; callers must pair each Start with a Stop.
func (m *Manager) Start() error {
	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("scale: enable adapter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.running = true
	m.ctx = ctx
	m.cancel = cancel
	for address := range m.devices {
		m.spawnLocked(ctx, address)
	}
	n := len(m.devices)
	m.mu.Unlock()

	slog.Info("[scale] manager started", "devices", n)
	return nil
}

// Stop cancels every supervisor and waits, without a timeout, for all
// of them to finish teardown and exit. Safe to call when not started.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.running = false
	m.ctx = nil
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	slog.Info("[scale] manager stopped")
}

// AddDevice registers a scale at runtime. A new address gets a
// supervisor immediately when the manager is running, without
// disturbing the others; a known address only has its display name
// updated.
func (m *Manager) AddDevice(address, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, known := m.devices[address]
	m.devices[address] = name
	if known || !m.running {
		return
	}
	m.spawnLocked(m.ctx, address)
	slog.Info("[scale] device added", "address", address, "name", name)
}

// spawnLocked launches the supervisor goroutine for address (caller
// must hold mu).
func (m *Manager) spawnLocked(ctx context.Context, address string) {
	s := newSupervisor(m.adapter, address, m.filter, m.cache, m.timing)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run(ctx)
	}()
}

// Devices returns a snapshot of the known devices (address → name).
func (m *Manager) Devices() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.devices))
	for address, name := range m.devices {
		out[address] = name
	}
	return out
}

// Weight returns the last propagated weight for address.
func (m *Manager) Weight(address string) (int, bool) {
	return m.cache.Weight(address)
}

// RegisterCallback subscribes fn to propagated readings from address.
func (m *Manager) RegisterCallback(address string, fn WeightFunc) CallbackID {
	return m.cache.Register(address, fn)
}

// UnregisterCallback removes a callback registered with
// RegisterCallback.
func (m *Manager) UnregisterCallback(address string, id CallbackID) {
	m.cache.Unregister(address, id)
}
