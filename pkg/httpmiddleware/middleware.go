// Package httpmiddleware provides the HTTP middleware used by the API
// server: panic recovery, request IDs, request logging, CORS, and rate
// limiting. All middleware use the standard func(http.Handler) http.Handler
// shape so they compose with chi.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware = func(http.Handler) http.Handler

// Wrap applies middleware so that the first listed runs outermost.
func Wrap(h http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
