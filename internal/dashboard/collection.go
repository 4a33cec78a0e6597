package dashboard

import (
	"sync"

	"meshdash/internal/device"
)

// Collection is the keyed set of devices the dashboard shows.
type Collection struct {
	mu      sync.RWMutex
	devices map[string]device.Device
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{devices: make(map[string]device.Device)}
}

// Replace swaps the whole collection for m.
func (c *Collection) Replace(m map[string]device.Device) {
	next := make(map[string]device.Device, len(m))
	for k, d := range m {
		next[k] = d.Clone()
	}
	c.mu.Lock()
	c.devices = next
	c.mu.Unlock()
}

// Get returns the device stored under key.
func (c *Collection) Get(key string) (device.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[key]
	if !ok {
		return device.Device{}, false
	}
	return d.Clone(), true
}

// Upsert stores dev under key.
func (c *Collection) Upsert(key string, dev device.Device) {
	c.mu.Lock()
	c.devices[key] = dev.Clone()
	c.mu.Unlock()
}

// Remove deletes key and reports whether it was present.
func (c *Collection) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.devices[key]
	delete(c.devices, key)
	return ok
}

// Update applies fn to the current record under key and stores the result.
// It returns the previous and new records; ok is false when key is absent,
// in which case nothing is stored.
func (c *Collection) Update(key string, fn func(device.Device) device.Device) (prev, next device.Device, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.devices[key]
	if !ok {
		return device.Device{}, device.Device{}, false
	}
	next = fn(cur.Clone())
	c.devices[key] = next.Clone()
	return cur, next, true
}

// Sorted returns the devices in display order.
func (c *Collection) Sorted() []device.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return device.Sorted(c.devices)
}
