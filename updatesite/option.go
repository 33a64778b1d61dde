package updatesite

import (
	"net/http"

	"go.uber.org/zap"
)

// HTTPOption configures HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient sets the HTTP client. Default has a 30s timeout. If c is nil, the default client is left unchanged.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPProvider) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithAuthToken sets the Bearer token for the Authorization header.
func WithAuthToken(token string) HTTPOption {
	return func(h *HTTPProvider) {
		h.authToken = token
	}
}

// WithUserAgent overrides the User-Agent header. Empty keeps the default.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTPProvider) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// WithMaxArchiveSize limits the size of a downloaded kernel archive. n <= 0 keeps the default (256 MB).
func WithMaxArchiveSize(n int64) HTTPOption {
	return func(h *HTTPProvider) {
		if n > 0 {
			h.maxArchiveSize = n
		}
	}
}

// WithLogger sets the logger. If l is nil, the no-op logger is kept.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTPProvider) {
		if l != nil {
			h.log = l
		}
	}
}
