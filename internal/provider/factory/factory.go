package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"apprentice-gateway/internal/config"
	"apprentice-gateway/internal/provider"
)

const (
	defaultHTTPTimeout     = 25 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs a profile for every configured provider and
// stores it in the registry.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]

		timeout := pc.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}

		profile, err := provider.New(name, pc, newHTTPClient(timeout))
		if err != nil {
			return fmt.Errorf("initialise %s provider: %w", name, err)
		}
		if err := registry.Register(profile); err != nil {
			return fmt.Errorf("register %s provider: %w", name, err)
		}
	}

	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
