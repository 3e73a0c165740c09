package weather

import "errors"

var (
	// ErrNotFound is returned when no stored record matches a lookup.
	ErrNotFound = errors.New("weather record not found")

	// ErrProviderUnavailable covers network failures, timeouts and non-2xx
	// responses from the upstream provider.
	ErrProviderUnavailable = errors.New("weather provider unavailable")

	// ErrMalformedPayload is returned when a provider body cannot be parsed at
	// all. Callers treat it as ErrProviderUnavailable.
	ErrMalformedPayload = errors.New("malformed provider payload")

	ErrValidation = errors.New("invalid request")
)

// malformed wraps err so that it matches both ErrMalformedPayload and
// ErrProviderUnavailable.
type malformed struct{ err error }

func (m malformed) Error() string { return ErrMalformedPayload.Error() + ": " + m.err.Error() }

func (m malformed) Is(target error) bool {
	return target == ErrMalformedPayload || target == ErrProviderUnavailable
}

func (m malformed) Unwrap() error { return m.err }

// Malformed marks err as an unparsable provider payload.
func Malformed(err error) error {
	return malformed{err: err}
}
