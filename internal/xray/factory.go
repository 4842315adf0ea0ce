package xray

import (
	"fmt"

	"github.com/giantswarm/xray-mcp-server/internal/config"
)

// NewClient constructs the backend selected by cfg. Options given here are
// applied after the ones derived from cfg.
func NewClient(cfg *config.Config, opts ...Option) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	var base []Option
	if cfg.HTTPTimeout > 0 {
		base = append(base, WithTimeout(cfg.HTTPTimeout))
	}
	if cfg.EnvironmentsField != "" {
		base = append(base, WithEnvironmentsField(cfg.EnvironmentsField))
	}

	switch cfg.Deployment {
	case config.DeploymentCloud:
		if cfg.Cloud == nil {
			return nil, fmt.Errorf("cloud deployment selected without cloud credentials")
		}
		if cfg.Cloud.BaseURL != "" {
			base = append(base, WithCloudBaseURL(cfg.Cloud.BaseURL))
		}
		return NewCloudClient(cfg.Cloud.ClientID, cfg.Cloud.ClientSecret, append(base, opts...)...), nil

	case config.DeploymentServer:
		srv := cfg.Server
		if srv == nil {
			return nil, fmt.Errorf("server deployment selected without server credentials")
		}
		switch srv.AuthType {
		case config.AuthToken:
			return NewServerClientWithToken(srv.BaseURL, srv.Token, append(base, opts...)...), nil
		case config.AuthBasic:
			return NewServerClientWithBasicAuth(srv.BaseURL, srv.Username, srv.Password, append(base, opts...)...), nil
		default:
			return nil, fmt.Errorf("unsupported auth type %q", srv.AuthType)
		}

	default:
		return nil, fmt.Errorf("unsupported deployment %q", cfg.Deployment)
	}
}
