package device

import (
	"sort"
)

// Entry pairs a device with its collection key.
type Entry struct {
	Key    string `json:"id"`
	Device Device `json:"device"`
}

// Sorted returns the devices of m ordered for display: devices with an
// instance first by instance, then devices without one. Ties break on key.
func Sorted(m map[string]Device) []Entry {
	entries := make([]Entry, 0, len(m))
	for k, d := range m {
		entries = append(entries, Entry{Key: k, Device: d})
	}
	sort.Slice(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
	return entries
}

// Less is the display order used by Sorted.
func Less(a, b Entry) bool {
	ai, bi := a.Device.Defaults.Instance, b.Device.Defaults.Instance
	switch {
	case ai == "" && bi != "":
		return false
	case ai != "" && bi == "":
		return true
	case ai != bi:
		return ai < bi
	}
	return a.Key < b.Key
}
