package device

// Device is one display node as known to the backend registry.
// Values are treated as immutable: the With* methods return a copy that
// replaces exactly one slice and shares nothing mutable with the receiver.
type Device struct {
	Defaults Defaults `json:"defaults"`
	Config   Config   `json:"config"`
	State    *State   `json:"state,omitempty"`
}

// Defaults are the settings pushed to the device on request.
type Defaults struct {
	Instance    string `json:"instance,omitempty"`
	TxPower     *int   `json:"txPower,omitempty"`
	PollPeriod  *int   `json:"pollPeriod,omitempty"`
	DisplayType string `json:"displayType,omitempty"`
	HwVersion   string `json:"hwVersion,omitempty"`
}

// Config holds dashboard-side configuration of a device.
type Config struct {
	MainIP                  string `json:"mainIp,omitempty"`
	StatePollingEnabled     bool   `json:"statePollingEnabled,omitempty"`
	StatePollingIntervalSec int    `json:"statePollingIntervalSec,omitempty"`
}

// State is the last telemetry snapshot reported by the device.
type State struct {
	Addresses  []Address   `json:"addresses,omitempty"`
	Vcc        int         `json:"vcc,omitempty"`
	Instance   string      `json:"instance,omitempty"`
	TxPower    *int        `json:"txPower,omitempty"`
	PollPeriod *int        `json:"pollPeriod,omitempty"`
	Parent     *ParentInfo `json:"parent,omitempty"`
}

// ParentInfo describes the radio link to the device's mesh parent.
type ParentInfo struct {
	Rloc16         string `json:"rloc16"`
	LinkQualityIn  int    `json:"linkQualityIn"`
	LinkQualityOut int    `json:"linkQualityOut"`
	AvgRssi        int    `json:"avgRssi"`
	LatestRssi     int    `json:"latestRssi"`
}

// WithDefaults returns a copy of d with its defaults replaced.
func (d Device) WithDefaults(def Defaults) Device {
	out := d.Clone()
	out.Defaults = def.Clone()
	return out
}

// WithConfig returns a copy of d with its config replaced.
func (d Device) WithConfig(cfg Config) Device {
	out := d.Clone()
	out.Config = cfg
	return out
}

// WithState returns a copy of d with its state replaced. A nil state clears it.
func (d Device) WithState(st *State) Device {
	out := d.Clone()
	out.State = st.Clone()
	return out
}

// WithAddresses returns a copy of d whose state carries addrs.
// The remaining state fields are kept.
func (d Device) WithAddresses(addrs []Address) Device {
	out := d.Clone()
	if out.State == nil {
		out.State = &State{}
	}
	out.State.Addresses = append([]Address(nil), addrs...)
	return out
}

// Addresses returns the addresses observed in the device state.
func (d Device) Addresses() []Address {
	if d.State == nil {
		return nil
	}
	return d.State.Addresses
}

// Title is the human label of the device: the configured instance, or N/A.
func (d Device) Title() string {
	if d.Defaults.Instance != "" {
		return d.Defaults.Instance
	}
	return "N/A"
}

// Clone returns a deep copy.
func (d Device) Clone() Device {
	return Device{
		Defaults: d.Defaults.Clone(),
		Config:   d.Config,
		State:    d.State.Clone(),
	}
}

// Clone returns a deep copy.
func (def Defaults) Clone() Defaults {
	out := def
	out.TxPower = cloneInt(def.TxPower)
	out.PollPeriod = cloneInt(def.PollPeriod)
	return out
}

// Clone returns a deep copy, or nil for a nil state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Addresses = append([]Address(nil), s.Addresses...)
	out.TxPower = cloneInt(s.TxPower)
	out.PollPeriod = cloneInt(s.PollPeriod)
	if s.Parent != nil {
		p := *s.Parent
		out.Parent = &p
	}
	return &out
}

// Int returns a pointer to v, for optional fields.
func Int(v int) *int {
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
