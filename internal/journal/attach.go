package journal

import (
	"log/slog"

	"meshdash/internal/dashboard"
)

// Attach records completed and failed dashboard operations in j.
// Returns an unsubscribe function.
func Attach(bus *dashboard.EventBus, j *Journal, logger *slog.Logger) func() {
	logger = logger.With("component", "journal")
	return bus.OnAll(func(e dashboard.Event) {
		rec, ok := recordFor(e)
		if !ok {
			return
		}
		if _, err := j.Append(rec); err != nil {
			logger.Error("append record", "op", rec.Op, "err", err)
		}
	})
}

func recordFor(e dashboard.Event) (Record, bool) {
	data, ok := e.Data.(dashboard.DeviceData)
	if !ok {
		return Record{}, false
	}
	rec := Record{Op: data.Op, Key: data.Key, Address: data.Address}
	switch e.Type {
	case dashboard.EventCollectionLoaded, dashboard.EventDefaultsPushed, dashboard.EventDeviceRemoved:
		rec.OK = true
	case dashboard.EventDeviceChanged:
		// refresh_state is journaled once, from state_refreshed.
		if data.Op == "" || data.Op == dashboard.OpRefreshState {
			return Record{}, false
		}
		rec.OK = true
	case dashboard.EventStateRefreshed:
		rec.OK = true
	case dashboard.EventOperationFailed:
		rec.Error = data.Error
	default:
		return Record{}, false
	}
	if rec.Op == "" {
		return Record{}, false
	}
	return rec, true
}
