package sequin

import (
	"strings"

	"github.com/sequinstream/sequin-go/pkg/httpclient"
	"github.com/spf13/viper"
)

const (
	// DefaultBaseURL is used when neither WithBaseURL nor SEQUIN_URL is set.
	DefaultBaseURL = "http://localhost:7376"

	// BaseURLEnvKey is the viper key bound to the SEQUIN_URL environment variable.
	BaseURLEnvKey = "sequin_url"
)

type clientConfig struct {
	baseURL    string
	httpClient httpclient.Client
	log        Logger
}

// Option configures a Client.
type Option func(*clientConfig)

// WithBaseURL sets the service base URL. An empty value falls back to the
// environment and then to DefaultBaseURL. Trailing slashes are trimmed so that
// "http://host/api/" and "http://host/api" address the same endpoints, and
// stream and consumer names are path-escaped when joined onto it.
func WithBaseURL(url string) Option {
	return func(cfg *clientConfig) {
		cfg.baseURL = url
	}
}

// WithHTTPClient replaces the default resty-backed transport.
func WithHTTPClient(c httpclient.Client) Option {
	return func(cfg *clientConfig) {
		if c != nil {
			cfg.httpClient = c
		}
	}
}

// WithLogger attaches a structured logger for request diagnostics.
func WithLogger(log Logger) Option {
	return func(cfg *clientConfig) {
		if log != nil {
			cfg.log = log
		}
	}
}

// resolveBaseURL applies argument -> environment -> default precedence.
// Trailing slashes are dropped so endpoint paths join cleanly.
func resolveBaseURL(explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return strings.TrimRight(v, "/")
	}

	v := viper.New()
	v.SetDefault(BaseURLEnvKey, DefaultBaseURL)
	v.AutomaticEnv()

	if resolved := strings.TrimSpace(v.GetString(BaseURLEnvKey)); resolved != "" {
		return strings.TrimRight(resolved, "/")
	}
	return DefaultBaseURL
}
