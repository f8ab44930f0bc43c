// Package httputil provides shared HTTP response/request utilities for the
// auto-scale API handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls, so every endpoint shares one JSON envelope and one error shape.
package httputil
