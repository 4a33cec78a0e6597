package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"meshdash/internal/action"
	"meshdash/internal/backend"
	"meshdash/internal/device"
)

func mustItem(t *testing.T, d *Dashboard, key string) *Item {
	t.Helper()
	it, ok := d.Item(key)
	if !ok {
		t.Fatalf("item %q missing", key)
	}
	return it
}

func TestLoadOrdersEntries(t *testing.T) {
	d, events := newTestDashboard(t, newFakeBackend(fleet()))

	var got []string
	for _, e := range d.Entries() {
		got = append(got, e.Key)
	}
	if diff := cmp.Diff([]string{"dev2", "dev1", "dev3"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{EventCollectionLoaded}, eventTypes(*events)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if len(d.Views()) != 3 {
		t.Errorf("views = %d, want 3", len(d.Views()))
	}
}

func TestLoadFailureClearsCollection(t *testing.T) {
	fb := newFakeBackend(fleet())
	d, _ := newTestDashboard(t, fb)

	fb.fail[OpLoad] = 503
	err := d.Load(context.Background())
	var se *backend.StatusError
	if !errors.As(err, &se) || se.Code != 503 {
		t.Fatalf("Load err = %v, want Status: 503", err)
	}
	if len(d.Entries()) != 0 {
		t.Errorf("entries = %d, want 0", len(d.Entries()))
	}
	if d.LoadError() == nil || !strings.Contains(d.LoadError().Error(), "Status: 503") {
		t.Errorf("LoadError() = %v", d.LoadError())
	}
}

func TestDeleteFailureKeepsDevice(t *testing.T) {
	fb := newFakeBackend(fleet())
	fb.fail[OpDelete] = 500
	d, events := newTestDashboard(t, fb)

	err := mustItem(t, d, "dev1").Remove(context.Background())
	if err == nil || err.Error() != "Status: 500" {
		t.Fatalf("Remove err = %v, want Status: 500", err)
	}
	if _, ok := d.Device("dev1"); !ok {
		t.Fatal("dev1 removed after failed delete")
	}
	if _, ok := d.Item("dev1"); !ok {
		t.Fatal("dev1 item dropped after failed delete")
	}

	notes := d.Notifications().Active()
	if len(notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes))
	}
	if !strings.Contains(notes[0].Message, "Status: 500") || !notes[0].IsError || notes[0].Key != "dev1" {
		t.Errorf("notification = %+v", notes[0])
	}
	want := []string{EventCollectionLoaded, EventNotification, EventOperationFailed}
	if diff := cmp.Diff(want, eventTypes(*events)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteSuccessRemovesDevice(t *testing.T) {
	d, events := newTestDashboard(t, newFakeBackend(fleet()))
	it := mustItem(t, d, "dev1")

	if err := it.Remove(context.Background()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := d.Device("dev1"); ok {
		t.Error("dev1 still present")
	}
	if _, ok := d.Item("dev1"); ok {
		t.Error("dev1 item still present")
	}
	if it.ctx.Err() == nil {
		t.Error("item context not cancelled")
	}
	last := (*events)[len(*events)-1]
	if data, _ := last.Data.(DeviceData); last.Type != EventDeviceRemoved || data.Key != "dev1" || data.Op != OpDelete {
		t.Errorf("last event = %+v", last)
	}
}

func TestSaveDefaultsMergesOnlyDefaults(t *testing.T) {
	fb := newFakeBackend(fleet())
	d, events := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")
	before, _ := d.Device("dev1")

	if err := it.Edit(PanelDefaults, FieldInstance, "zz"); err != nil {
		t.Fatal(err)
	}
	if err := it.Edit(PanelDefaults, FieldTxPower, "-8"); err != nil {
		t.Fatal(err)
	}
	v, _ := it.View()
	if !v.Defaults.SaveEligible {
		t.Fatal("defaults not save eligible after edit")
	}
	if !v.PushDisabled {
		t.Error("push enabled with unsaved defaults")
	}

	if err := it.SaveDefaults(context.Background()); err != nil {
		t.Fatalf("SaveDefaults: %v", err)
	}
	after, _ := d.Device("dev1")
	want := before.WithDefaults(device.Defaults{Instance: "zz", TxPower: device.Int(-8), PollPeriod: device.Int(1000)})
	if diff := cmp.Diff(want, after); diff != "" {
		t.Errorf("device mismatch (-want +got):\n%s", diff)
	}

	v, _ = it.View()
	if v.Defaults.SaveEligible || v.Defaults.Dirty {
		t.Errorf("defaults view after save = %+v", v.Defaults)
	}
	if !v.Defaults.Status.Empty() {
		t.Errorf("status = %+v, want empty", v.Defaults.Status)
	}
	if v.PushDisabled {
		t.Error("push disabled after save")
	}
	last := (*events)[len(*events)-1]
	if last.Type != EventDeviceChanged {
		t.Errorf("last event = %q, want %q", last.Type, EventDeviceChanged)
	}
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	fb := newFakeBackend(fleet())
	fb.fail[OpSaveConfig] = 500
	d, _ := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")

	it.Edit(PanelConfig, FieldMainIP, "fd00::2")
	if err := it.SaveConfig(context.Background()); err == nil {
		t.Fatal("SaveConfig err = nil")
	}
	v, _ := it.View()
	if !v.Config.Status.IsError || v.Config.Status.Message != "Status: 500" {
		t.Errorf("status = %+v", v.Config.Status)
	}
	if v.Config.Draft.Value.MainIP != "fd00::2" {
		t.Errorf("draft mainIp = %q", v.Config.Draft.Value.MainIP)
	}
	if cur, _ := d.Device("dev1"); cur.Config.MainIP != "fd00::1" {
		t.Errorf("confirmed mainIp = %q, want fd00::1", cur.Config.MainIP)
	}
}

func TestConfigMainIPMustBeKnown(t *testing.T) {
	d, _ := newTestDashboard(t, newFakeBackend(fleet()))
	it := mustItem(t, d, "dev1")

	it.Edit(PanelConfig, FieldMainIP, "10.0.0.1")
	v, _ := it.View()
	if v.Config.SaveEligible || v.Config.Draft.Valid() {
		t.Errorf("unknown address accepted: %+v", v.Config)
	}
	if err := it.SaveConfig(context.Background()); !errors.Is(err, action.ErrDisabled) {
		t.Errorf("SaveConfig err = %v, want ErrDisabled", err)
	}
}

func TestSaveAddressesMarksOneMain(t *testing.T) {
	fb := newFakeBackend(fleet())
	d, _ := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")

	it.Edit(PanelAddresses, FieldMainAddress, "fd00::2")
	if err := it.SaveAddresses(context.Background()); err != nil {
		t.Fatalf("SaveAddresses: %v", err)
	}
	cur, _ := d.Device("dev1")
	want := []device.Address{{IP: "fd00::1"}, {IP: "fd00::2", Main: true}}
	if diff := cmp.Diff(want, cur.Addresses()); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
	if cur.State.Vcc != 3000 {
		t.Errorf("vcc = %d, want 3000", cur.State.Vcc)
	}
	if diff := cmp.Diff(want, fb.devices["dev1"].Addresses()); diff != "" {
		t.Errorf("persisted addresses mismatch (-want +got):\n%s", diff)
	}

	it.Edit(PanelAddresses, FieldMainAddress, "")
	if err := it.SaveAddresses(context.Background()); err != nil {
		t.Fatalf("SaveAddresses: %v", err)
	}
	cur, _ = d.Device("dev1")
	if m := device.MainAddress(cur.Addresses()); m != "" {
		t.Errorf("main = %q after clearing selection", m)
	}
}

func TestSaveAddressesSendsLatestRecord(t *testing.T) {
	fb := newFakeBackend(fleet())
	d, _ := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")

	it.Edit(PanelAddresses, FieldMainAddress, "fd00::2")
	it.Edit(PanelDefaults, FieldInstance, "zz")
	if err := it.SaveDefaults(context.Background()); err != nil {
		t.Fatalf("SaveDefaults: %v", err)
	}
	if err := it.SaveAddresses(context.Background()); err != nil {
		t.Fatalf("SaveAddresses: %v", err)
	}

	fb.mu.Lock()
	saved := fb.devices["dev1"].Clone()
	fb.mu.Unlock()
	if saved.Defaults.Instance != "zz" {
		t.Errorf("persisted instance = %q, want zz", saved.Defaults.Instance)
	}
	if m := device.MainAddress(saved.Addresses()); m != "fd00::2" {
		t.Errorf("persisted main = %q, want fd00::2", m)
	}
	cur, _ := d.Device("dev1")
	if !device.Equal(cur, saved) {
		t.Errorf("local and persisted records differ:\n%s", device.Diff(saved, cur))
	}
}

func TestRefreshStateMergesState(t *testing.T) {
	fb := newFakeBackend(fleet())
	fb.state = &device.State{
		Addresses: []device.Address{{IP: "fd00::1"}},
		Vcc:       2900,
		Parent:    &device.ParentInfo{Rloc16: "0x4400", AvgRssi: -70},
	}
	d, events := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")
	before, _ := d.Device("dev1")

	if err := it.RefreshState(context.Background()); err != nil {
		t.Fatalf("RefreshState: %v", err)
	}
	after, _ := d.Device("dev1")
	if diff := cmp.Diff(before.WithState(fb.state), after); diff != "" {
		t.Errorf("device mismatch (-want +got):\n%s", diff)
	}
	if n := fb.count(OpLoad); n != 1 {
		t.Errorf("list calls = %d, want 1", n)
	}
	types := eventTypes(*events)
	if diff := cmp.Diff([]string{EventCollectionLoaded, EventDeviceChanged, EventStateRefreshed}, types); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestActionsNeedMainAddress(t *testing.T) {
	fb := newFakeBackend(fleet())
	d, _ := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev2")

	v, _ := it.View()
	if !v.RefreshDisabled || !v.PushDisabled {
		t.Errorf("refresh/push enabled without main IP: %+v", v)
	}
	if err := it.RefreshState(context.Background()); !errors.Is(err, ErrNoMainAddress) {
		t.Errorf("RefreshState err = %v, want ErrNoMainAddress", err)
	}
	if err := it.PushDefaults(context.Background()); !errors.Is(err, ErrNoMainAddress) {
		t.Errorf("PushDefaults err = %v, want ErrNoMainAddress", err)
	}
	if fb.count(OpRefreshState)+fb.count(OpPushDefaults) != 0 {
		t.Error("backend called without main IP")
	}
}

func TestPushDefaults(t *testing.T) {
	fb := newFakeBackend(fleet())
	d, events := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")

	if err := it.PushDefaults(context.Background()); err != nil {
		t.Fatalf("PushDefaults: %v", err)
	}
	last := (*events)[len(*events)-1]
	if data, _ := last.Data.(DeviceData); last.Type != EventDefaultsPushed || data.Address != "fd00::1" {
		t.Errorf("last event = %+v", last)
	}

	it.Edit(PanelDefaults, FieldPollPeriod, "abc")
	if err := it.PushDefaults(context.Background()); !errors.Is(err, action.ErrDisabled) {
		t.Errorf("PushDefaults with invalid draft err = %v, want ErrDisabled", err)
	}
	if n := fb.count(OpPushDefaults); n != 1 {
		t.Errorf("push calls = %d, want 1", n)
	}
}

func TestConcurrentSavesMergePerSlice(t *testing.T) {
	fb := newFakeBackend(fleet())
	gate := make(chan struct{})
	fb.gate[OpSaveDefaults] = gate
	d, _ := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")

	it.Edit(PanelDefaults, FieldInstance, "slow")
	it.Edit(PanelConfig, FieldMainIP, "fd00::2")

	done := make(chan error, 1)
	go func() { done <- it.SaveDefaults(context.Background()) }()

	waitFor(t, func() bool { return fb.count(OpSaveDefaults) == 1 })
	v, _ := it.View()
	if !v.Defaults.Busy {
		t.Error("defaults not busy during save")
	}
	if err := it.SaveDefaults(context.Background()); !errors.Is(err, action.ErrBusy) {
		t.Errorf("second SaveDefaults err = %v, want ErrBusy", err)
	}

	if err := it.SaveConfig(context.Background()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("SaveDefaults: %v", err)
	}

	cur, _ := d.Device("dev1")
	if cur.Defaults.Instance != "slow" || cur.Config.MainIP != "fd00::2" {
		t.Errorf("device = %+v", cur)
	}
	if n := fb.count(OpSaveDefaults); n != 1 {
		t.Errorf("save defaults calls = %d, want 1", n)
	}
}

func TestRemoveCancelsOutstandingRequests(t *testing.T) {
	fb := newFakeBackend(fleet())
	fb.gate[OpSaveConfig] = make(chan struct{})
	d, _ := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")

	it.Edit(PanelConfig, FieldMainIP, "fd00::2")
	done := make(chan error, 1)
	go func() { done <- it.SaveConfig(context.Background()) }()
	waitFor(t, func() bool { return fb.count(OpSaveConfig) == 1 })

	d.DeviceRemoved("dev1")

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("SaveConfig err = %v, want canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("save not cancelled after removal")
	}
	if _, ok := d.Device("dev1"); ok {
		t.Error("removed device resurrected")
	}
}

func TestDeviceChangedUpserts(t *testing.T) {
	d, events := newTestDashboard(t, newFakeBackend(fleet()))
	d.DeviceChanged("dev0", device.Device{Defaults: device.Defaults{Instance: "a0"}})

	if _, ok := d.Item("dev0"); !ok {
		t.Fatal("no item for new device")
	}
	if got := d.Entries()[0].Key; got != "dev0" {
		t.Errorf("first entry = %q, want dev0", got)
	}

	d.DeviceChanged("dev3", device.Device{Defaults: device.Defaults{Instance: "zz"}})
	entries := d.Entries()
	if got := entries[len(entries)-1].Key; got != "dev3" {
		t.Errorf("last entry = %q, want dev3", got)
	}

	n := len(*events)
	same, _ := d.Device("dev1")
	d.DeviceChanged("dev1", same.WithAddresses([]device.Address{same.State.Addresses[1], same.State.Addresses[0]}))
	if len(*events) != n {
		t.Errorf("unchanged record emitted %d events", len(*events)-n)
	}
}

func TestMergeFollowsUntouchedDrafts(t *testing.T) {
	fb := newFakeBackend(fleet())
	fb.state = &device.State{Addresses: []device.Address{{IP: "fd00::1", Main: true}, {IP: "fd00::3"}}}
	d, _ := newTestDashboard(t, fb)
	it := mustItem(t, d, "dev1")

	it.Edit(PanelDefaults, FieldInstance, "mine")
	d.DeviceChanged("dev1", device.Device{Defaults: device.Defaults{Instance: "k1"}, Config: device.Config{MainIP: "fd00::1"}})
	if err := it.RefreshState(context.Background()); err != nil {
		t.Fatal(err)
	}

	v, _ := it.View()
	if v.Defaults.Draft.Value.Instance != "mine" {
		t.Errorf("edited draft overwritten: %q", v.Defaults.Draft.Value.Instance)
	}
	if v.Addresses.Dirty {
		t.Errorf("address draft dirty after refresh: %+v", v.Addresses)
	}
}

func TestUnknownPanelAndField(t *testing.T) {
	d, _ := newTestDashboard(t, newFakeBackend(fleet()))
	it := mustItem(t, d, "dev1")
	if err := it.Edit("nope", FieldInstance, "ab"); err == nil {
		t.Error("Edit(nope) err = nil")
	}
	if err := it.Edit(PanelConfig, FieldInstance, "ab"); err == nil {
		t.Error("Edit(config, instance) err = nil")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
