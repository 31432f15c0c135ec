package security

import (
	"fmt"
	"net/http"
)

// HeadersConfig lists the security headers set on every response. Empty
// values are not sent.
type HeadersConfig struct {
	CSP string

	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool

	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
	CrossOriginOpener   string
	CrossOriginResource string
	CacheControl        string
}

// APIHeadersConfig is tuned for a JSON API: nothing may be framed, loaded or
// cached by a browser.
func APIHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: "default-src 'none'; frame-ancestors 'none'",

		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,

		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		PermissionsPolicy:   "geolocation=(), microphone=(), camera=(), payment=()",
		CrossOriginOpener:   "same-origin",
		CrossOriginResource: "same-origin",
		CacheControl:        "no-store",
	}
}

type HeadersMiddleware struct {
	config HeadersConfig
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	return &HeadersMiddleware{config: config}
}

// Middleware returns the HTTP middleware function
func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.applyHeaders(w, r)
		next.ServeHTTP(w, r)
	})
}

func (h *HeadersMiddleware) applyHeaders(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	set := func(name, value string) {
		if value != "" {
			headers.Set(name, value)
		}
	}

	set("X-Content-Type-Options", h.config.XContentTypeOptions)
	set("X-Frame-Options", h.config.XFrameOptions)
	set("Content-Security-Policy", h.config.CSP)
	set("Referrer-Policy", h.config.ReferrerPolicy)
	set("Permissions-Policy", h.config.PermissionsPolicy)
	set("Cross-Origin-Opener-Policy", h.config.CrossOriginOpener)
	set("Cross-Origin-Resource-Policy", h.config.CrossOriginResource)
	set("Cache-Control", h.config.CacheControl)

	// HSTS only over TLS
	if r.TLS != nil && h.config.HSTSMaxAge > 0 {
		hstsValue := fmt.Sprintf("max-age=%d", h.config.HSTSMaxAge)
		if h.config.HSTSIncludeSubdomains {
			hstsValue += "; includeSubDomains"
		}
		if h.config.HSTSPreload {
			hstsValue += "; preload"
		}
		headers.Set("Strict-Transport-Security", hstsValue)
	}
}
