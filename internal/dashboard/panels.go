package dashboard

import (
	"fmt"

	"meshdash/internal/device"
	"meshdash/internal/form"
)

// Field names accepted by the panel reducers.
const (
	FieldInstance     = "instance"
	FieldTxPower      = "txPower"
	FieldPollPeriod   = "pollPeriod"
	FieldDisplayType  = "displayType"
	FieldHwVersion    = "hwVersion"
	FieldMainIP       = "mainIp"
	FieldPolling      = "statePollingEnabled"
	FieldPollInterval = "statePollingIntervalSec"
	FieldMainAddress  = "main"
)

func errUnknownField(field string) error {
	return fmt.Errorf("unknown field %q", field)
}

func reduceDefaults(d form.Draft[device.Defaults], field, input string) (form.Draft[device.Defaults], error) {
	v := d.Value.Clone()
	switch field {
	case FieldInstance:
		s, err := form.ParseInstance(input)
		if err != nil {
			return d.Reject(field, input), nil
		}
		v.Instance = s
	case FieldTxPower:
		n, err := form.ParseIntChoice(field, input, device.TxPowers)
		if err != nil {
			return d.Reject(field, input), nil
		}
		v.TxPower = n
	case FieldPollPeriod:
		n, err := form.ParsePollPeriod(input)
		if err != nil {
			return d.Reject(field, input), nil
		}
		v.PollPeriod = n
	case FieldDisplayType:
		s, err := form.ParseChoice(field, input, device.OptionValues(device.DisplayTypes))
		if err != nil {
			return d.Reject(field, input), nil
		}
		v.DisplayType = s
	case FieldHwVersion:
		s, err := form.ParseChoice(field, input, device.OptionValues(device.HwVersions))
		if err != nil {
			return d.Reject(field, input), nil
		}
		v.HwVersion = s
	default:
		return d, errUnknownField(field)
	}
	return d.Accept(field, v), nil
}

// configReducer validates the main IP against the addresses currently known
// for the device.
func configReducer(addresses func() []device.Address) form.Reducer[device.Config] {
	return func(d form.Draft[device.Config], field, input string) (form.Draft[device.Config], error) {
		v := d.Value
		switch field {
		case FieldMainIP:
			if input != "" && !device.HasAddress(addresses(), input) {
				return d.Reject(field, input), nil
			}
			v.MainIP = input
		case FieldPolling:
			b, err := form.ParseBool(field, input)
			if err != nil {
				return d.Reject(field, input), nil
			}
			v.StatePollingEnabled = b
		case FieldPollInterval:
			n, err := form.ParseIntChoice(field, input, device.StatePollingIntervals)
			if err != nil {
				return d.Reject(field, input), nil
			}
			v.StatePollingIntervalSec = 0
			if n != nil {
				v.StatePollingIntervalSec = *n
			}
		default:
			return d, errUnknownField(field)
		}
		return d.Accept(field, v), nil
	}
}

func addressesReducer(addresses func() []device.Address) form.Reducer[string] {
	return func(d form.Draft[string], field, input string) (form.Draft[string], error) {
		if field != FieldMainAddress {
			return d, errUnknownField(field)
		}
		if input != "" && !device.HasAddress(addresses(), input) {
			return d.Reject(field, input), nil
		}
		return d.Accept(field, input), nil
	}
}

func equalString(a, b string) bool {
	return a == b
}
