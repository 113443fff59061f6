package middleware

import (
	"net/http"
	"strings"
)

// CORSOptions controls the cross-origin headers the resource routes answer
// with. A zero value emits no headers, which disables cross-origin use.
type CORSOptions struct {
	// AllowedOrigins lists origins that may call the API. The single entry
	// "*" allows any origin.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// ExposedHeaders are response headers browser scripts may read.
	ExposedHeaders   []string
	AllowCredentials bool
}

// defaultCORSOptions opens the resource routes to any origin and lets
// scripts read the request id header.
func defaultCORSOptions() *CORSOptions {
	return &CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	}
}

// CORSWithOptions answers cross-origin requests for the wrapped handler.
// Nil options mean the defaults. Preflight OPTIONS requests are answered
// with 204 without reaching the handler.
func CORSWithOptions(options *CORSOptions) func(http.Handler) http.Handler {
	if options == nil {
		options = defaultCORSOptions()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := allowOrigin(options.AllowedOrigins, r.Header.Get("Origin"))
			if origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				if origin != "*" {
					h.Add("Vary", "Origin")
				}
				if len(options.AllowedMethods) > 0 {
					h.Set("Access-Control-Allow-Methods", strings.Join(options.AllowedMethods, ", "))
				}
				if len(options.AllowedHeaders) > 0 {
					h.Set("Access-Control-Allow-Headers", strings.Join(options.AllowedHeaders, ", "))
				}
				if len(options.ExposedHeaders) > 0 {
					h.Set("Access-Control-Expose-Headers", strings.Join(options.ExposedHeaders, ", "))
				}
				if options.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			// a preflight carries the method it asks about; a plain OPTIONS
			// request still belongs to the handler
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin resolves the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed.
func allowOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}
