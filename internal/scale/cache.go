package scale

import "sync"

// WeightFunc receives propagated weight readings. Callbacks run
// synchronously on the notification path and must return quickly.
type WeightFunc func(address string, weight int, details Details)

// CallbackID identifies a registered callback so it can be removed
// later. Functions are not comparable in Go, so the registry hands out
// handles instead of keying on the callbacks themselves.
type CallbackID uint64

// Cache holds the last propagated weight per device and fans readings
// out to registered observers. Only readings that passed the Filter
// ever reach Publish, so the cached value is never a suppressed zero.
type Cache struct {
	mu        sync.Mutex
	weights   map[string]int
	nextID    CallbackID
	callbacks map[string]map[CallbackID]WeightFunc
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		weights:   make(map[string]int),
		callbacks: make(map[string]map[CallbackID]WeightFunc),
	}
}

// Publish stores the weight for address and notifies its observers.
// Each callback is invoked exactly once per call, outside the cache
// lock; ordering between callbacks is unspecified.
func (c *Cache) Publish(address string, weight int, details Details) {
	c.mu.Lock()
	c.weights[address] = weight
	fns := make([]WeightFunc, 0, len(c.callbacks[address]))
	for _, fn := range c.callbacks[address] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(address, weight, details)
	}
}

// Weight returns the last propagated weight for address.
func (c *Cache) Weight(address string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.weights[address]
	return w, ok
}

// Register adds an observer for readings from address and returns a
// handle for Unregister.
func (c *Cache) Register(address string, fn WeightFunc) CallbackID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	set := c.callbacks[address]
	if set == nil {
		set = make(map[CallbackID]WeightFunc)
		c.callbacks[address] = set
	}
	set[id] = fn
	return id
}

// Unregister removes a previously registered observer. Unknown handles
// are ignored.
func (c *Cache) Unregister(address string, id CallbackID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.callbacks[address], id)
}
