package form

// Status is the one-line feedback shown under a panel.
type Status struct {
	Message      string `json:"message,omitempty"`
	IsError      bool   `json:"is_error,omitempty"`
	ShowProgress bool   `json:"show_progress,omitempty"`
}

// EmptyStatus is the idle state.
var EmptyStatus = Status{}

// Progress is a neutral in-progress status.
func Progress(msg string) Status {
	return Status{Message: msg, ShowProgress: true}
}

// Failure renders err as an error status.
func Failure(err error) Status {
	if err == nil {
		return EmptyStatus
	}
	return Status{Message: err.Error(), IsError: true}
}

// Empty reports whether s is the idle state.
func (s Status) Empty() bool {
	return s == EmptyStatus
}
