package testutil

import (
	"net/http"
)

// WithBearer sets the Authorization header the caller middleware reads.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithCallValue sets the value attached to a paid call. Empty values leave
// the header unset so the call carries zero.
func WithCallValue(req *http.Request, value string) *http.Request {
	if value != "" {
		req.Header.Set("X-Call-Value", value)
	}
	return req
}
