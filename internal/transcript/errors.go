package transcript

import "fmt"

// FormatError reports a structurally matched block whose timestamps or
// duration terminators are not valid. It is fatal for the containing document.
type FormatError struct {
	Field string // "timestamp", "interval" or "duration"
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
