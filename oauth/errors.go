package oauth

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/oauth2"
)

var (
	// ErrNotAuthorized means there is no usable credential and the user has
	// to authorize again.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNoRefreshToken is wrapped by RefreshError when the stored
	// credential cannot be refreshed.
	ErrNoRefreshToken = errors.New("no refresh token available, re-authorization required")
	// ErrStateMismatch is returned when a callback carries an unknown state.
	ErrStateMismatch = errors.New("authorization state mismatch")
)

// AuthExchangeError is returned when trading an authorization code for a
// credential fails. StatusCode is zero when the request never got a response.
type AuthExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed: %d %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// RefreshError is returned when a refresh_token grant fails. The stored
// credential has already been cleared when this is returned from a request.
type RefreshError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token refresh failed: %d %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err was caused by a transport failure
// rather than an HTTP response.
func IsNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// tokenFailure extracts the HTTP status and body from an x/oauth2 error.
func tokenFailure(err error) (int, string) {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return status, string(re.Body)
	}
	return 0, ""
}
