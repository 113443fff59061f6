// Package middleware holds the request plumbing the server wraps around its
// resource routes: request ids, request logging and CORS.
package middleware

import (
	"net/http"

	"github.com/restable/restable/pkg/httputil"
)

// Chain wraps h in the given middlewares. The first middleware is the
// outermost one: Chain(h, a, b) serves a(b(h)).
func Chain(h http.Handler, middlewares ...httputil.Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
