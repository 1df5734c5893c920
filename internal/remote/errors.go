package remote

import (
	"context"
	"errors"
	"strings"
)

// Error is a failure reported by the backend service.
type Error struct {
	Name    string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("remote")
	if e.Code != "" {
		b.WriteString(" [" + e.Code + "]")
	}
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// CodeSuperseded marks a request dropped because a newer one replaced it.
const CodeSuperseded = "PGRST000"

// IsBenign reports whether err is an expected abort/no-op condition that
// should not be logged.
func IsBenign(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var re *Error
	if errors.As(err, &re) {
		if re.Name == "AbortError" || re.Code == CodeSuperseded {
			return true
		}
		if strings.Contains(strings.ToLower(re.Message), "aborted") {
			return true
		}
		if re.Message == "" && re.Err == nil {
			return true
		}
		return false
	}
	msg := err.Error()
	return msg == "" || strings.Contains(strings.ToLower(msg), "aborted")
}
