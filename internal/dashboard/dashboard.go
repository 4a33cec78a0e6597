// Package dashboard keeps the device collection shown in the browser, the
// per-device editors and the transient notifications.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meshdash/internal/device"
)

// Backend is the device registry the dashboard edits.
type Backend interface {
	ListDevices(ctx context.Context) (map[string]device.Device, error)
	SaveDefaults(ctx context.Context, id string, def device.Defaults) error
	SaveConfig(ctx context.Context, id string, cfg device.Config) error
	SaveDevice(ctx context.Context, id string, dev device.Device) error
	PushDefaults(ctx context.Context, id, address string) error
	RefreshState(ctx context.Context, id, address string) (*device.State, error)
	DeleteDevice(ctx context.Context, id string) error
}

// Dashboard owns the collection and one Item per device.
type Dashboard struct {
	backend Backend
	bus     *EventBus
	notes   *Notifier
	logger  *slog.Logger
	coll    *Collection

	ctx    context.Context
	cancel context.CancelFunc

	loadMu   sync.Mutex
	mu       sync.RWMutex
	items    map[string]*Item
	loadErr  error
	loadedAt time.Time
}

// New creates an empty dashboard. Call Load to fetch the devices.
func New(backend Backend, bus *EventBus, notes *Notifier, logger *slog.Logger) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dashboard{
		backend: backend,
		bus:     bus,
		notes:   notes,
		logger:  logger.With("component", "dashboard"),
		coll:    NewCollection(),
		ctx:     ctx,
		cancel:  cancel,
		items:   make(map[string]*Item),
	}
}

// Events returns the dashboard event bus.
func (d *Dashboard) Events() *EventBus {
	return d.bus
}

// Notifications returns the notifier.
func (d *Dashboard) Notifications() *Notifier {
	return d.notes
}

// Load fetches the whole collection and replaces the local one. Drafts and
// in-flight requests of the previous collection are dropped. On failure the
// collection is emptied and the error is kept for display.
func (d *Dashboard) Load(ctx context.Context) error {
	d.loadMu.Lock()
	defer d.loadMu.Unlock()

	devices, err := d.backend.ListDevices(ctx)
	if err != nil {
		devices = nil
		err = fmt.Errorf("load devices: %w", err)
	}

	d.coll.Replace(devices)
	items := make(map[string]*Item, len(devices))
	for key, dev := range devices {
		items[key] = newItem(d.ctx, d, key, dev)
	}

	d.mu.Lock()
	old := d.items
	d.items = items
	d.loadErr = err
	d.loadedAt = time.Now()
	d.mu.Unlock()

	for _, it := range old {
		it.close()
	}

	if err != nil {
		d.logger.Error("load devices", "err", err)
		d.bus.Emit(Event{Type: EventOperationFailed, Data: DeviceData{Op: OpLoad, Error: err.Error()}})
		return err
	}
	d.logger.Info("devices loaded", "count", len(devices))
	d.bus.Emit(Event{Type: EventCollectionLoaded, Data: DeviceData{Op: OpLoad, Count: len(devices)}})
	return nil
}

// LoadError returns the error of the last Load, if any.
func (d *Dashboard) LoadError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadErr
}

// LoadedAt returns when the collection was last loaded.
func (d *Dashboard) LoadedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadedAt
}

// Item returns the editor of device key.
func (d *Dashboard) Item(key string) (*Item, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	it, ok := d.items[key]
	return it, ok
}

// Device returns the current record of device key.
func (d *Dashboard) Device(key string) (device.Device, bool) {
	return d.coll.Get(key)
}

// Entries returns the devices in display order. The order is computed on
// every call.
func (d *Dashboard) Entries() []device.Entry {
	return d.coll.Sorted()
}

// Views returns render snapshots of all items in display order.
func (d *Dashboard) Views() []ItemView {
	entries := d.coll.Sorted()
	views := make([]ItemView, 0, len(entries))
	for _, e := range entries {
		it, ok := d.Item(e.Key)
		if !ok {
			continue
		}
		if v, ok := it.View(); ok {
			views = append(views, v)
		}
	}
	return views
}

// DeviceChanged stores dev under key, adding an editor for new devices.
// A record equal to the stored one is ignored.
func (d *Dashboard) DeviceChanged(key string, dev device.Device) {
	prev, had := d.coll.Get(key)
	if had {
		if device.Equal(prev, dev) {
			return
		}
		d.logger.Debug("device changed", "id", key, "diff", device.Diff(prev, dev))
	}
	d.coll.Upsert(key, dev)
	d.mu.Lock()
	it, ok := d.items[key]
	if !ok {
		d.items[key] = newItem(d.ctx, d, key, dev)
	}
	d.mu.Unlock()
	if ok && had {
		it.follow(prev, dev)
	}
	d.bus.Emit(Event{Type: EventDeviceChanged, Data: DeviceData{Key: key, Device: &dev}})
}

// DeviceRemoved drops key and cancels its outstanding requests.
func (d *Dashboard) DeviceRemoved(key string) {
	d.deviceRemoved(key, "")
}

func (d *Dashboard) deviceRemoved(key, op string) {
	removed := d.coll.Remove(key)
	d.mu.Lock()
	it, ok := d.items[key]
	delete(d.items, key)
	d.mu.Unlock()
	if ok {
		it.close()
	}
	if removed {
		d.logger.Info("device removed", "id", key)
		d.bus.Emit(Event{Type: EventDeviceRemoved, Data: DeviceData{Key: key, Op: op}})
	}
}

// Close cancels all outstanding requests and stops the notifier.
func (d *Dashboard) Close() {
	d.cancel()
	d.notes.Stop()
}
