package statsapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, connection
	// errors, rate limiting and 5xx responses.
	ErrTransient = errors.New("transient provider error")
	// ErrPermanent marks failures that will not go away on retry.
	ErrPermanent = errors.New("permanent provider error")
)

// HTTPError is a non-200 response from the provider.
type HTTPError struct {
	Path       string
	Status     int
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.Path, e.Status)
}

// Is classifies the response so callers can match ErrTransient or ErrPermanent.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return transientStatus(e.Status)
	case ErrPermanent:
		return !transientStatus(e.Status)
	}
	return false
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
