package xray

import (
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// clientConfig holds configuration shared by both backends.
type clientConfig struct {
	httpClient        *http.Client
	timeout           time.Duration
	cloudBaseURL      string
	environmentsField string
	now               func() time.Time
}

// Option is a functional option for configuring a backend client.
type Option func(*clientConfig)

// WithHTTPClient sets the HTTP client used for every upstream call.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
// Ignored when WithHTTPClient is used.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.timeout = d
	}
}

// WithCloudBaseURL overrides the Xray Cloud API root (e.g. a regional endpoint).
func WithCloudBaseURL(u string) Option {
	return func(cfg *clientConfig) {
		cfg.cloudBaseURL = u
	}
}

// WithEnvironmentsField sets the Jira field holding test environments on
// Xray Server execution issues.
func WithEnvironmentsField(field string) Option {
	return func(cfg *clientConfig) {
		cfg.environmentsField = field
	}
}

// withClock replaces time.Now; used by tests.
func withClock(now func() time.Time) Option {
	return func(cfg *clientConfig) {
		cfg.now = now
	}
}

func newClientConfig(opts []Option) *clientConfig {
	cfg := &clientConfig{
		timeout:           defaultHTTPTimeout,
		cloudBaseURL:      DefaultCloudBaseURL,
		environmentsField: DefaultEnvironmentsField,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}
	return cfg
}
