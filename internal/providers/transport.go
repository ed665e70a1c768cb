package providers

import (
	"net/http"
	"time"

	"mediachat/internal/logger"
)

// sensitiveHeaders are never written to the log.
var sensitiveHeaders = map[string]bool{
	"Authorization":  true,
	"X-Api-Key":      true,
	"X-Goog-Api-Key": true,
}

// LoggingTransport wraps a RoundTripper and logs each provider request at
// debug level with its duration and status.
type LoggingTransport struct {
	Base http.RoundTripper
}

// NewLoggingTransport wraps base, or http.DefaultTransport when base is nil.
func NewLoggingTransport(base http.RoundTripper) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &LoggingTransport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		logger.Debug("Provider request failed",
			"method", req.Method, "url", redactURL(req), "duration", elapsed, "error", err)
		return resp, err
	}

	logger.Debug("Provider request",
		"method", req.Method, "url", redactURL(req), "status", resp.StatusCode,
		"duration", elapsed, "headers", sanitizeHeaders(req.Header))
	return resp, nil
}

// sanitizeHeaders masks credential headers.
func sanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		if sensitiveHeaders[http.CanonicalHeaderKey(name)] {
			sanitized[name] = "[REDACTED]"
			continue
		}
		sanitized[name] = values[0]
	}
	return sanitized
}

// redactURL drops a key query parameter from the logged URL.
func redactURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	u := *req.URL
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "[REDACTED]")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
