package scale

import "sync"

// Filter suppresses the idle zero readings the scales stream while
// unloaded or settling. Non-zero weights always propagate; zeros never
// do, but the first zero after a non-zero reading flips the device into
// a suppressed state so repeated zeros stay silent until a real reading
// arrives again.
//
// One Filter is shared by every supervisor so that per-device
// suppression state survives reconnects.
type Filter struct {
	mu         sync.Mutex
	suppressed map[string]bool
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{suppressed: make(map[string]bool)}
}

// Apply reports whether the weight should be propagated for the device
// at address.
func (f *Filter) Apply(address string, weight int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if weight != 0 {
		f.suppressed[address] = false
		return true
	}
	if f.suppressed[address] {
		return false
	}
	f.suppressed[address] = true
	return false
}
