package dashboard

import (
	"context"
	"errors"
	"fmt"

	"meshdash/internal/action"
	"meshdash/internal/device"
	"meshdash/internal/form"
)

var (
	// ErrUnknownDevice is returned for keys not in the collection.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrNoMainAddress is returned when a device action needs a main IP.
	ErrNoMainAddress = errors.New("device has no main address")
)

// Item is the editor of one device. It holds the panel drafts and is the
// only writer of its device's record in the collection.
type Item struct {
	key string
	d   *Dashboard

	// ctx is cancelled when the item is dropped from the dashboard.
	ctx    context.Context
	cancel context.CancelFunc

	defaults  *form.Panel[device.Defaults]
	config    *form.Panel[device.Config]
	addresses *form.Panel[string]
	state     form.Activity

	push    action.Control
	refresh action.Control
	remove  action.Control
}

// ItemView is a render snapshot of an item.
type ItemView struct {
	Key    string
	Title  string
	Device device.Device

	Defaults  form.PanelView[device.Defaults]
	Config    form.PanelView[device.Config]
	Addresses form.PanelView[string]

	PushDisabled    bool
	PushBusy        bool
	State           form.Status
	RefreshDisabled bool
	RefreshBusy     bool
	Removing        bool
}

func newItem(parent context.Context, d *Dashboard, key string, dev device.Device) *Item {
	ctx, cancel := context.WithCancel(parent)
	it := &Item{key: key, d: d, ctx: ctx, cancel: cancel}
	it.defaults = form.NewPanel(dev.Defaults, reduceDefaults, device.EqualDefaults)
	it.config = form.NewPanel(dev.Config, configReducer(it.currentAddresses), device.EqualConfig)
	it.addresses = form.NewPanel(device.MainAddress(dev.Addresses()), addressesReducer(it.currentAddresses), equalString)
	return it
}

// Key returns the collection key of the device.
func (it *Item) Key() string {
	return it.key
}

func (it *Item) currentAddresses() []device.Address {
	dev, _ := it.d.coll.Get(it.key)
	return dev.Addresses()
}

func (it *Item) current() (device.Device, error) {
	dev, ok := it.d.coll.Get(it.key)
	if !ok {
		return device.Device{}, fmt.Errorf("%s: %w", it.key, ErrUnknownDevice)
	}
	return dev, nil
}

// bind derives a request context that outlives the caller's request but
// ends when the item is dropped.
func (it *Item) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(it.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Edit applies one input to the named panel.
func (it *Item) Edit(panel, field, input string) error {
	var err error
	switch panel {
	case PanelDefaults:
		_, err = it.defaults.Edit(field, input)
	case PanelConfig:
		_, err = it.config.Edit(field, input)
	case PanelAddresses:
		_, err = it.addresses.Edit(field, input)
	default:
		err = fmt.Errorf("unknown panel %q", panel)
	}
	return err
}

// Panel names accepted by Edit.
const (
	PanelDefaults  = "defaults"
	PanelConfig    = "config"
	PanelAddresses = "addresses"
)

// SaveDefaults persists the defaults draft and merges it on success.
func (it *Item) SaveDefaults(ctx context.Context) error {
	dev, err := it.current()
	if err != nil {
		return err
	}
	ctx, done := it.bind(ctx)
	defer done()
	err = it.defaults.Save(ctx, dev.Defaults, func(ctx context.Context, def device.Defaults) error {
		if err := it.d.backend.SaveDefaults(ctx, it.key, def); err != nil {
			return err
		}
		it.merge(OpSaveDefaults, func(d device.Device) device.Device { return d.WithDefaults(def) })
		return nil
	})
	return it.report(OpSaveDefaults, "", err)
}

// SaveConfig persists the config draft and merges it on success.
func (it *Item) SaveConfig(ctx context.Context) error {
	dev, err := it.current()
	if err != nil {
		return err
	}
	ctx, done := it.bind(ctx)
	defer done()
	err = it.config.Save(ctx, dev.Config, func(ctx context.Context, cfg device.Config) error {
		if err := it.d.backend.SaveConfig(ctx, it.key, cfg); err != nil {
			return err
		}
		it.merge(OpSaveConfig, func(d device.Device) device.Device { return d.WithConfig(cfg) })
		return nil
	})
	return it.report(OpSaveConfig, "", err)
}

// SaveAddresses marks the selected address as main and persists the
// whole device as it stands when the request is sent.
func (it *Item) SaveAddresses(ctx context.Context) error {
	dev, err := it.current()
	if err != nil {
		return err
	}
	ctx, done := it.bind(ctx)
	defer done()
	err = it.addresses.Save(ctx, device.MainAddress(dev.Addresses()), func(ctx context.Context, sel string) error {
		latest, err := it.current()
		if err != nil {
			return err
		}
		addrs := device.SelectMain(latest.Addresses(), sel)
		if err := it.d.backend.SaveDevice(ctx, it.key, latest.WithAddresses(addrs)); err != nil {
			return err
		}
		it.merge(OpSaveAddresses, func(d device.Device) device.Device { return d.WithAddresses(addrs) })
		return nil
	})
	return it.report(OpSaveAddresses, "", err)
}

// PushDefaults sends the saved defaults to the device's main IP. It is
// disabled while the defaults draft differs from the saved value.
func (it *Item) PushDefaults(ctx context.Context) error {
	dev, err := it.current()
	if err != nil {
		return err
	}
	addr := dev.Config.MainIP
	if addr == "" {
		return fmt.Errorf("push defaults to %s: %w", it.key, ErrNoMainAddress)
	}
	ctx, done := it.bind(ctx)
	defer done()
	err = it.defaults.Perform(ctx, &it.push, it.pushDisabled(dev), "Pushing defaults..", func(ctx context.Context) error {
		if err := it.d.backend.PushDefaults(ctx, it.key, addr); err != nil {
			return err
		}
		it.d.bus.Emit(Event{Type: EventDefaultsPushed, Data: DeviceData{Key: it.key, Op: OpPushDefaults, Address: addr}})
		return nil
	})
	return it.report(OpPushDefaults, addr, err)
}

func (it *Item) pushDisabled(dev device.Device) bool {
	v := it.defaults.Snapshot(dev.Defaults)
	return dev.Config.MainIP == "" || v.Dirty || !v.Draft.Valid()
}

// RefreshState fetches live telemetry through the backend and merges the
// returned state without re-reading the device.
func (it *Item) RefreshState(ctx context.Context) error {
	dev, err := it.current()
	if err != nil {
		return err
	}
	addr := dev.Config.MainIP
	if addr == "" {
		return fmt.Errorf("refresh state of %s: %w", it.key, ErrNoMainAddress)
	}
	ctx, done := it.bind(ctx)
	defer done()
	err = it.state.Perform(ctx, &it.refresh, false, "Refreshing state..", func(ctx context.Context) error {
		st, err := it.d.backend.RefreshState(ctx, it.key, addr)
		if err != nil {
			return err
		}
		next, ok := it.merge(OpRefreshState, func(d device.Device) device.Device { return d.WithState(st) })
		if ok {
			it.d.bus.Emit(Event{Type: EventStateRefreshed, Data: DeviceData{Key: it.key, Op: OpRefreshState, Device: &next, Address: addr}})
		}
		return nil
	})
	return it.report(OpRefreshState, addr, err)
}

// Remove deletes the device from the backend. On failure the device stays
// and an error notification is raised.
func (it *Item) Remove(ctx context.Context) error {
	ctx, done := it.bind(ctx)
	defer done()
	err := it.remove.Run(ctx, false, func(ctx context.Context) error {
		return it.d.backend.DeleteDevice(ctx, it.key)
	})
	switch {
	case err == nil:
		it.d.deviceRemoved(it.key, OpDelete)
		return nil
	case errors.Is(err, action.ErrBusy):
		return err
	}
	it.d.notes.Error(it.key, fmt.Sprintf("Failed to remove device %s: %v", it.key, err))
	return it.report(OpDelete, "", err)
}

// merge applies fn to the then-current record and moves untouched drafts
// along. Nothing happens when the device has been removed meanwhile.
func (it *Item) merge(op string, fn func(device.Device) device.Device) (device.Device, bool) {
	if it.ctx.Err() != nil {
		it.d.logger.Debug("merge dropped, item closed", "id", it.key, "op", op)
		return device.Device{}, false
	}
	prev, next, ok := it.d.coll.Update(it.key, fn)
	if !ok {
		it.d.logger.Debug("merge dropped, device gone", "id", it.key, "op", op)
		return device.Device{}, false
	}
	it.follow(prev, next)
	it.d.bus.Emit(Event{Type: EventDeviceChanged, Data: DeviceData{Key: it.key, Op: op, Device: &next}})
	return next, true
}

func (it *Item) follow(prev, next device.Device) {
	it.defaults.Follow(prev.Defaults, next.Defaults)
	it.config.Follow(prev.Config, next.Config)
	it.addresses.Follow(device.MainAddress(prev.Addresses()), device.MainAddress(next.Addresses()))
}

// report logs and publishes a failed operation. Guard rejections are
// returned as is without an event.
func (it *Item) report(op, addr string, err error) error {
	if err == nil || errors.Is(err, action.ErrBusy) || errors.Is(err, action.ErrDisabled) {
		return err
	}
	it.d.logger.Warn("device operation failed", "id", it.key, "op", op, "err", err)
	it.d.bus.Emit(Event{Type: EventOperationFailed, Data: DeviceData{Key: it.key, Op: op, Address: addr, Error: err.Error()}})
	return err
}

// View snapshots the item for rendering.
func (it *Item) View() (ItemView, bool) {
	dev, ok := it.d.coll.Get(it.key)
	if !ok {
		return ItemView{}, false
	}
	return ItemView{
		Key:             it.key,
		Title:           dev.Title(),
		Device:          dev,
		Defaults:        it.defaults.Snapshot(dev.Defaults),
		Config:          it.config.Snapshot(dev.Config),
		Addresses:       it.addresses.Snapshot(device.MainAddress(dev.Addresses())),
		PushDisabled:    it.push.Disabled(it.pushDisabled(dev)),
		PushBusy:        it.push.Busy(),
		State:           it.state.Status(),
		RefreshDisabled: it.refresh.Disabled(dev.Config.MainIP == ""),
		RefreshBusy:     it.refresh.Busy(),
		Removing:        it.remove.Busy(),
	}, true
}

func (it *Item) close() {
	it.cancel()
}
