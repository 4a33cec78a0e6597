package device

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var equalOpts = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmpopts.SortSlices(func(a, b Address) bool { return a.IP < b.IP }),
}

// EqualDefaults reports whether two defaults carry the same settings.
func EqualDefaults(a, b Defaults) bool {
	return cmp.Equal(a, b, equalOpts...)
}

// EqualConfig reports whether two configs are the same.
func EqualConfig(a, b Config) bool {
	return a == b
}

// Equal reports whether two devices are the same, ignoring address order
// and the difference between nil and empty lists.
func Equal(a, b Device) bool {
	return cmp.Equal(a, b, equalOpts...)
}

// Diff returns a human readable difference between two devices, or "".
func Diff(a, b Device) string {
	return cmp.Diff(a, b, equalOpts...)
}
