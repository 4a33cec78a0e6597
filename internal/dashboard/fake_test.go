package dashboard

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"meshdash/internal/backend"
	"meshdash/internal/device"
)

// fakeBackend is an in-memory registry. fail maps an operation to the
// status code it answers with; gate, when set, blocks an operation until
// the channel is closed or the request is cancelled.
type fakeBackend struct {
	mu      sync.Mutex
	devices map[string]device.Device
	state   *device.State
	fail    map[string]int
	gate    map[string]chan struct{}
	calls   []string
}

func newFakeBackend(devices map[string]device.Device) *fakeBackend {
	return &fakeBackend{
		devices: devices,
		fail:    make(map[string]int),
		gate:    make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	gate := f.gate[op]
	code := f.fail[op]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if code != 0 {
		return &backend.StatusError{Code: code}
	}
	return nil
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) ListDevices(ctx context.Context) (map[string]device.Device, error) {
	if err := f.enter(ctx, OpLoad); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]device.Device, len(f.devices))
	for k, d := range f.devices {
		out[k] = d.Clone()
	}
	return out, nil
}

func (f *fakeBackend) SaveDefaults(ctx context.Context, id string, def device.Defaults) error {
	if err := f.enter(ctx, OpSaveDefaults); err != nil {
		return err
	}
	f.mu.Lock()
	f.devices[id] = f.devices[id].WithDefaults(def)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) SaveConfig(ctx context.Context, id string, cfg device.Config) error {
	if err := f.enter(ctx, OpSaveConfig); err != nil {
		return err
	}
	f.mu.Lock()
	f.devices[id] = f.devices[id].WithConfig(cfg)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) SaveDevice(ctx context.Context, id string, dev device.Device) error {
	if err := f.enter(ctx, OpSaveAddresses); err != nil {
		return err
	}
	f.mu.Lock()
	f.devices[id] = dev.Clone()
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) PushDefaults(ctx context.Context, id, address string) error {
	return f.enter(ctx, OpPushDefaults)
}

func (f *fakeBackend) RefreshState(ctx context.Context, id, address string) (*device.State, error) {
	if err := f.enter(ctx, OpRefreshState); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone(), nil
}

func (f *fakeBackend) DeleteDevice(ctx context.Context, id string) error {
	if err := f.enter(ctx, OpDelete); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.devices, id)
	f.mu.Unlock()
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestDashboard loads a dashboard over fb and records every event.
func newTestDashboard(t *testing.T, fb *fakeBackend) (*Dashboard, *[]Event) {
	t.Helper()
	logger := testLogger()
	bus := NewEventBus(logger)
	var mu sync.Mutex
	var events []Event
	bus.OnAll(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	d := New(fb, bus, NewNotifier(DefaultNotificationTTL, bus), logger)
	t.Cleanup(d.Close)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return d, &events
}

func eventTypes(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func fleet() map[string]device.Device {
	return map[string]device.Device{
		"dev1": {
			Defaults: device.Defaults{Instance: "k1", TxPower: device.Int(0), PollPeriod: device.Int(1000)},
			Config:   device.Config{MainIP: "fd00::1"},
			State:    &device.State{Addresses: []device.Address{{IP: "fd00::1", Main: true}, {IP: "fd00::2"}}, Vcc: 3000},
		},
		"dev2": {
			Defaults: device.Defaults{Instance: "aa"},
		},
		"dev3": {},
	}
}
