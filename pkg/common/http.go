package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// Version is the build version embedded from the VERSION file.
func Version() string {
	return strings.TrimSpace(version)
}

// UserAgent is sent on every outbound request.
func UserAgent() string {
	return "VoltLedger/" + Version()
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip sets the User-Agent on a clone of req.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// headers of the caller's request may be shared
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// HTTPClient returns an http client that identifies itself as VoltLedger.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: UserAgent(),
		},
		Timeout: timeout,
	}
}
