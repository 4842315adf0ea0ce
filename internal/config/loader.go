package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Resolve merges sources into one value set. Sources are given highest
// precedence first; the first non-empty value for a key wins.
func Resolve(sources ...Source) map[string]string {
	values := map[string]string{}
	for _, key := range Keys {
		for _, src := range sources {
			if src == nil {
				continue
			}
			v, ok := src.Lookup(key)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			values[key] = strings.TrimSpace(v)
			slog.Debug("config key resolved", "key", key, "source", src.Name())
			break
		}
	}
	return values
}

// Load resolves, validates and builds the configuration.
func Load(sources ...Source) (*Config, error) {
	values := Resolve(sources...)
	if err := Validate(values); err != nil {
		return nil, err
	}
	return build(values)
}

func build(values map[string]string) (*Config, error) {
	cfg := &Config{
		Deployment:        Deployment(values[KeyDeployment]),
		DefaultProject:    values[KeyDefaultProject],
		EnvironmentsField: values[KeyEnvironmentsField],
		HTTPTimeout:       DefaultHTTPTimeout,
	}

	if raw := values[KeyHTTPTimeout]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, &ValidationError{Problems: []string{invalidMessages[KeyHTTPTimeout]}}
		}
		cfg.HTTPTimeout = d
	}

	switch cfg.Deployment {
	case DeploymentCloud:
		cfg.Cloud = &CloudCredentials{
			ClientID:     values[KeyCloudClientID],
			ClientSecret: values[KeyCloudClientSecret],
			BaseURL:      values[KeyCloudBaseURL],
		}
	case DeploymentServer:
		cfg.Server = &ServerCredentials{
			BaseURL:  strings.TrimRight(values[KeyJiraBaseURL], "/"),
			AuthType: AuthType(values[KeyAuthType]),
		}
		if cfg.Server.AuthType == AuthToken {
			cfg.Server.Token = values[KeyToken]
		} else {
			cfg.Server.Username = values[KeyUsername]
			cfg.Server.Password = values[KeyPassword]
		}
	default:
		return nil, fmt.Errorf("unsupported deployment %q", cfg.Deployment)
	}
	return cfg, nil
}
