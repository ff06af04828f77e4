package security

import (
	"net/http"
	"strconv"
	"strings"
)

// HeadersConfig lists the response headers every API response carries.
type HeadersConfig struct {
	// Static is copied onto every response.
	Static map[string]string

	// HSTSMaxAge is sent in seconds on TLS connections only. Zero disables it.
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	// NoStorePrefix marks responses under this path as uncacheable.
	NoStorePrefix string
}

// DefaultHeadersConfig returns defaults for a JSON API that serves no documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		Static: map[string]string{
			"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'",
			"X-Content-Type-Options":       "nosniff",
			"X-Frame-Options":              "DENY",
			"Referrer-Policy":              "no-referrer",
			"Permissions-Policy":           "geolocation=(), microphone=(), camera=(), payment=()",
			"Cross-Origin-Opener-Policy":   "same-origin",
			"Cross-Origin-Resource-Policy": "same-origin",
		},
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		NoStorePrefix:         "/api/",
	}
}

// HeadersMiddleware applies security headers to responses.
type HeadersMiddleware struct {
	static  http.Header
	hsts    string
	noStore string
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	h := &HeadersMiddleware{static: make(http.Header, len(config.Static)), noStore: config.NoStorePrefix}
	for k, v := range config.Static {
		if v != "" {
			h.static.Set(k, v)
		}
	}
	if config.HSTSMaxAge > 0 {
		h.hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			h.hsts += "; includeSubDomains"
		}
	}
	return h
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := w.Header()
		for k, v := range h.static {
			out.Set(k, v[0])
		}
		// balances and sessions must not land in shared caches
		if h.noStore != "" && strings.HasPrefix(r.URL.Path, h.noStore) {
			out.Set("Cache-Control", "no-store")
			out.Add("Vary", "Authorization")
		}
		if r.TLS != nil && h.hsts != "" {
			out.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}
