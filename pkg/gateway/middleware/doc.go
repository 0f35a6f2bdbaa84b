// Package middleware provides the HTTP middleware chain for the gateway:
// request ID propagation, panic recovery, structured request logging, and
// rate limit admission.
package middleware
