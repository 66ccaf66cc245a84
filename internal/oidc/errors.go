package oidc

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable wraps transport failures talking to the
	// identity provider.  Never retried inside this package.
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")

	// ErrExchangeFailed is matched by every *ExchangeError.
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrMalformedToken means the token could not be decoded at all.
	ErrMalformedToken = errors.New("malformed token")
)

// ExchangeError reports a non-2xx answer from the token endpoint.
type ExchangeError struct {
	Op         string
	StatusCode int
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s: identity provider answered %d", e.Op, e.StatusCode)
}

// Is lets errors.Is(err, ErrExchangeFailed) match.
func (e *ExchangeError) Is(target error) bool { return target == ErrExchangeFailed }
