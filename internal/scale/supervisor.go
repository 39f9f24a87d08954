package scale

import (
	"context"
	"log/slog"
	"time"

	"github.com/dstrnad/sencorscale/internal/ble"
)

// Timing groups the intervals that drive a device supervisor.
type Timing struct {
	// ScanInterval is the pause between periodic reading cycles.
	// Zero selects continuous mode: stay connected and stream.
	ScanInterval time.Duration
	// OffInterval is the pause before retrying after a failed cycle.
	OffInterval time.Duration
	// ResolveTimeout bounds each address resolution attempt.
	ResolveTimeout time.Duration
	// ListenWindow bounds the wait for a reading in periodic mode.
	ListenWindow time.Duration
	// LivenessPoll is how often continuous mode checks the link.
	LivenessPoll time.Duration
}

// DefaultTiming returns the stock intervals.
func DefaultTiming() Timing {
	return Timing{
		ScanInterval:   0,
		OffInterval:    30 * time.Second,
		ResolveTimeout: 10 * time.Second,
		ListenWindow:   30 * time.Second,
		LivenessPoll:   time.Second,
	}
}

// withDefaults fills unset fields. ScanInterval is left alone: zero is
// meaningful there.
func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.OffInterval <= 0 {
		t.OffInterval = def.OffInterval
	}
	if t.ResolveTimeout <= 0 {
		t.ResolveTimeout = def.ResolveTimeout
	}
	if t.ListenWindow <= 0 {
		t.ListenWindow = def.ListenWindow
	}
	if t.LivenessPoll <= 0 {
		t.LivenessPoll = def.LivenessPoll
	}
	return t
}

// supervisor owns the connection lifecycle for one scale. It loops
// through resolve, connect, subscribe, listen and teardown until its
// context is cancelled, pausing between cycles according to Timing and
// the cycle outcome. Failures are never fatal: every error path funnels
// into the off-interval wait and the next cycle.
type supervisor struct {
	adapter ble.Adapter
	address string
	filter  *Filter
	cache   *Cache
	timing  Timing

	// readingCh is signalled when a reading for this device passes the
	// filter; periodic mode uses it to end the listen phase early.
	readingCh chan struct{}
}

func newSupervisor(adapter ble.Adapter, address string, filter *Filter, cache *Cache, timing Timing) *supervisor {
	return &supervisor{
		adapter:   adapter,
		address:   address,
		filter:    filter,
		cache:     cache,
		timing:    timing.withDefaults(),
		readingCh: make(chan struct{}, 1),
	}
}

// run loops reading cycles until ctx is cancelled. Cancellation is the
// only exit.
func (s *supervisor) run(ctx context.Context) {
	slog.Debug("[scale] supervisor started", "address", s.address)
	defer slog.Debug("[scale] supervisor stopped", "address", s.address)

	for {
		if ctx.Err() != nil {
			return
		}
		wait := s.cycle(ctx)
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// cycle performs one resolve/connect/listen pass and returns how long
// to wait before the next one. Teardown (unsubscribe and close) runs on
// every exit path, including cancellation.
func (s *supervisor) cycle(ctx context.Context) time.Duration {
	// Drop a reading signal left over from a previous cycle so it cannot
	// end the next listen phase prematurely.
	select {
	case <-s.readingCh:
	default:
	}

	dev, err := s.adapter.Resolve(ctx, s.address, s.timing.ResolveTimeout)
	if err != nil {
		slog.Debug("[scale] device not found", "address", s.address, "error", err)
		return s.timing.OffInterval
	}
	slog.Debug("[scale] device resolved", "address", s.address, "name", dev.Name, "rssi", dev.RSSI)

	conn, err := s.adapter.Connect(ctx, s.address)
	if err != nil {
		slog.Debug("[scale] connect failed", "address", s.address, "error", err)
		return s.timing.OffInterval
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("[scale] close failed", "address", s.address, "error", err)
		}
	}()

	if !conn.Connected() {
		slog.Debug("[scale] link down after connect", "address", s.address)
		return s.timing.OffInterval
	}

	channels, err := conn.Channels()
	if err != nil {
		slog.Debug("[scale] channel discovery failed", "address", s.address, "error", err)
		return s.timing.OffInterval
	}
	if len(channels) == 0 {
		slog.Debug("[scale] no notification channels", "address", s.address)
		return s.timing.OffInterval
	}

	subscribed := s.subscribe(channels)
	defer s.unsubscribe(subscribed)
	if len(subscribed) == 0 {
		slog.Debug("[scale] no channel accepted a subscription", "address", s.address)
		return s.timing.OffInterval
	}

	slog.Info("[scale] listening", "address", s.address, "channels", len(subscribed))
	return s.listen(ctx, conn)
}

// subscribe enables notifications on every channel it can; individual
// failures are logged and skipped.
func (s *supervisor) subscribe(channels []ble.Channel) []ble.Channel {
	var subscribed []ble.Channel
	for _, ch := range channels {
		if err := ch.Subscribe(s.handleNotification); err != nil {
			slog.Debug("[scale] subscribe failed", "address", s.address, "channel", ch.ID(), "error", err)
			continue
		}
		subscribed = append(subscribed, ch)
	}
	return subscribed
}

// unsubscribe disables notifications best-effort during teardown.
func (s *supervisor) unsubscribe(channels []ble.Channel) {
	for _, ch := range channels {
		if err := ch.Unsubscribe(); err != nil {
			slog.Debug("[scale] unsubscribe failed", "address", s.address, "channel", ch.ID(), "error", err)
		}
	}
}

// handleNotification decodes one payload and routes it through the
// filter to the cache. Suppressed and undecodable payloads go no
// further than the debug log.
func (s *supervisor) handleNotification(payload []byte) {
	slog.Debug("[scale] notification", "address", s.address, "payload", FormatPayload(payload))

	weight, details, ok := Decode(payload)
	if !ok {
		return
	}
	if !s.filter.Apply(s.address, weight) {
		return
	}
	s.cache.Publish(s.address, weight, details)

	select {
	case s.readingCh <- struct{}{}:
	default:
	}
}

// listen waits out the reading phase and returns the pause before the
// next cycle. Continuous mode holds the link until it drops or ctx is
// cancelled; periodic mode ends after the first propagated reading or
// the listen window, whichever comes first, and waits out the scan
// interval either way.
func (s *supervisor) listen(ctx context.Context, conn ble.Connection) time.Duration {
	if s.timing.ScanInterval == 0 {
		for {
			if !sleepCtx(ctx, s.timing.LivenessPoll) {
				return 0
			}
			if !conn.Connected() {
				slog.Warn("[scale] link dropped", "address", s.address)
				return s.timing.OffInterval
			}
		}
	}

	window := time.NewTimer(s.timing.ListenWindow)
	defer window.Stop()
	select {
	case <-ctx.Done():
		return 0
	case <-s.readingCh:
		slog.Debug("[scale] reading received, disconnecting", "address", s.address)
	case <-window.C:
		slog.Debug("[scale] listen window expired", "address", s.address)
	}
	return s.timing.ScanInterval
}

// sleepCtx waits for d, returning false early if ctx is cancelled.
// A non-positive d returns immediately.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
