package device

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Address is one network address observed for a device.
type Address struct {
	IP   string `json:"ip"`
	Main bool   `json:"main,omitempty"`
}

// UnmarshalJSON accepts both the plain string form used by older backends
// and the {"ip": ..., "main": ...} object form.
func (a *Address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var ip string
		if err := json.Unmarshal(data, &ip); err != nil {
			return err
		}
		*a = Address{IP: ip}
		return nil
	}
	type plain Address
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	*a = Address(p)
	return nil
}

// SelectMain returns a copy of addrs in which only the entry matching sel is
// marked main. When sel is empty or unknown no entry is marked; a repeated
// address is marked once.
func SelectMain(addrs []Address, sel string) []Address {
	out := make([]Address, len(addrs))
	marked := false
	for i, a := range addrs {
		main := !marked && sel != "" && a.IP == sel
		marked = marked || main
		out[i] = Address{IP: a.IP, Main: main}
	}
	return out
}

// MainAddress returns the IP of the first entry marked main, or "".
func MainAddress(addrs []Address) string {
	for _, a := range addrs {
		if a.Main {
			return a.IP
		}
	}
	return ""
}

// HasAddress reports whether ip is one of addrs.
func HasAddress(addrs []Address, ip string) bool {
	for _, a := range addrs {
		if a.IP == ip {
			return true
		}
	}
	return false
}
