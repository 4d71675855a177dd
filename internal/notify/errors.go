package notify

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPermanent marks a failure that retrying cannot fix, such as a rejected
// token or a wrong URL.
var ErrPermanent = errors.New("permanent delivery failure")

// StatusError is a non-2xx response from the gateway.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("gotify returned HTTP %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("gotify returned HTTP %d", e.Code)
}

// Is lets errors.Is(err, ErrPermanent) classify status errors.
func (e *StatusError) Is(target error) bool {
	return target == ErrPermanent && !e.Transient()
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// isPermanent returns true for errors that should not be retried.
func isPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
