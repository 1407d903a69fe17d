package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("remote: not found")

// Error is a response from the remote store that was not a success.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote: %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the same request could succeed.
func (e *Error) Temporary() bool {
	switch {
	case e.Status >= 500:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	}
	return false
}

// IsTerminal reports whether err is a rejection that will fail the same way
// on every retry, such as a validation or constraint error. Network failures
// and server errors are not terminal.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var re *Error
	if errors.As(err, &re) {
		return !re.Temporary()
	}
	return false
}
