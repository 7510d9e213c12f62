package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// validateConfig validates configuration values for correctness.
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateESIConfig(&config.ESI); err != nil {
		return fmt.Errorf("esi config: %w", err)
	}
	if err := validateUpstreamConfig(&config.Upstream); err != nil {
		return fmt.Errorf("upstream config: %w", err)
	}
	if err := validateRoutesConfig(&config.Routes); err != nil {
		return fmt.Errorf("routes config: %w", err)
	}
	if config.Upstream.URL == "" && config.Routes.File == "" {
		return fmt.Errorf("either upstream.url or routes.file must be set")
	}
	return nil
}

func validateServerConfig(server *ServerConfig) error {
	if server.Port < 1 || server.Port > 65535 {
		return fmt.Errorf("port %d out of range (1-65535)", server.Port)
	}
	if server.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if strings.ContainsAny(server.Host, " \t\n\r") {
		return fmt.Errorf("host %q contains whitespace", server.Host)
	}
	if server.ReadTimeout < 0 || server.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func validateESIConfig(esi *ESIConfig) error {
	if esi.Namespace == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	for _, r := range esi.Namespace {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return fmt.Errorf("namespace %q must be lowercase alphanumeric", esi.Namespace)
		}
	}
	if esi.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be at least 1, got %d", esi.MaxDepth)
	}
	return nil
}

func validateUpstreamConfig(upstream *UpstreamConfig) error {
	if upstream.URL != "" {
		u, err := url.Parse(upstream.URL)
		if err != nil {
			return fmt.Errorf("url %q: %w", upstream.URL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("url %q must be absolute http(s)", upstream.URL)
		}
		if u.Host == "" {
			return fmt.Errorf("url %q has no host", upstream.URL)
		}
	}
	if upstream.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

func validateRoutesConfig(routes *RoutesConfig) error {
	if routes.File == "" {
		return nil
	}
	switch ext := filepath.Ext(routes.File); ext {
	case ".yml", ".yaml":
		return nil
	default:
		return fmt.Errorf("route file %q must be a .yml or .yaml file", routes.File)
	}
}
