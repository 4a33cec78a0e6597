package device

// Option is a selectable value with its label.
type Option struct {
	Value string
	Label string
}

// TxPowers are the radio transmit power levels a device accepts, in dBm.
var TxPowers = []int{8, 4, 0, -4, -8, -12, -16, -20}

// PollPeriodSuggestions are offered for the poll period input, in ms.
var PollPeriodSuggestions = []int{200, 500, 1000, 2000, 5000, 10000, 15000}

// StatePollingIntervals are the supported state polling intervals, in seconds.
var StatePollingIntervals = []int{60, 120, 300, 600, 900, 1800, 3600}

// DefaultStatePollingIntervalSec matches the backend's default for new devices.
const DefaultStatePollingIntervalSec = 600

// DisplayTypes are the e-paper panels a device can drive.
var DisplayTypes = []Option{
	{Value: "GOOD_DISPLAY_1_54IN", Label: "GoodDisplay 1.54\""},
	{Value: "GOOD_DISPLAY_2_13IN", Label: "GoodDisplay 2.13\""},
	{Value: "GOOD_DISPLAY_2_9IN", Label: "GoodDisplay 2.9\""},
	{Value: "GOOD_DISPLAY_2_9IN_4GRAY", Label: "GoodDisplay 2.9\" 4-gray"},
}

// HwVersions are the supported board revisions.
var HwVersions = []Option{
	{Value: "E73", Label: "E73"},
	{Value: "MS88SF2_V1_0", Label: "MS88SF2 v1.0"},
}

// OptionValues returns the values of opts.
func OptionValues(opts []Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Value
	}
	return out
}
