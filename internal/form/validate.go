// Package form holds the editing model of the dashboard panels: field
// parsers, immutable drafts, status lines and the panel save cycle.
package form

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	instancePattern   = regexp.MustCompile(`^\w{2,4}$`)
	pollPeriodPattern = regexp.MustCompile(`^(\d+)\s*$`)
)

// FieldError is a rejected field input.
type FieldError struct {
	Field  string
	Input  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ParseInstance accepts "" (unset) or two to four word characters.
func ParseInstance(s string) (string, error) {
	if s == "" || instancePattern.MatchString(s) {
		return s, nil
	}
	return "", &FieldError{Field: "instance", Input: s, Reason: "must be 2-4 letters, digits or underscores"}
}

// ParsePollPeriod accepts "" (unset, nil) or a positive number of
// milliseconds, optionally followed by whitespace.
func ParsePollPeriod(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	m := pollPeriodPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, &FieldError{Field: "pollPeriod", Input: s, Reason: "must be a number of milliseconds"}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &FieldError{Field: "pollPeriod", Input: s, Reason: "out of range"}
	}
	if n <= 0 {
		return nil, &FieldError{Field: "pollPeriod", Input: s, Reason: "must be greater than zero"}
	}
	return &n, nil
}

// ParseChoice accepts "" (unset) or one of allowed.
func ParseChoice(field, s string, allowed []string) (string, error) {
	if s == "" || slices.Contains(allowed, s) {
		return s, nil
	}
	return "", &FieldError{Field: field, Input: s, Reason: "unsupported value"}
}

// ParseIntChoice accepts "" (unset, nil) or the decimal form of one of allowed.
func ParseIntChoice(field, s string, allowed []int) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !slices.Contains(allowed, n) {
		return nil, &FieldError{Field: field, Input: s, Reason: "unsupported value"}
	}
	return &n, nil
}

// ParseBool accepts checkbox and strconv boolean spellings. "" is false.
func ParseBool(field, s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return false, nil
	case "on":
		return true, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &FieldError{Field: field, Input: s, Reason: "must be true or false"}
	}
	return b, nil
}
