package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	oauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers"
	"github.com/giantswarm/mcp-oauth/providers/dex"
	oauthserver "github.com/giantswarm/mcp-oauth/server"
	"github.com/giantswarm/mcp-oauth/storage/memory"
	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	// OAuthProviderDex is the Dex OIDC provider.
	OAuthProviderDex = "dex"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 120 * time.Second
	defaultIdleTimeout       = 120 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of either HTTP transport.
	DefaultShutdownTimeout = 10 * time.Second
)

// OAuthConfig holds configuration for the OAuth-enabled HTTP server.
type OAuthConfig struct {
	// BaseURL is the server's public base URL (e.g. https://xray-mcp.example.com).
	BaseURL string

	// Provider is the OAuth provider name. Only "dex" is supported.
	Provider string

	// DexIssuerURL is the Dex OIDC issuer URL.
	DexIssuerURL string

	// DexClientID is the Dex OAuth client ID.
	DexClientID string

	// DexClientSecret is the Dex OAuth client secret.
	DexClientSecret string
}

// OAuthHTTPServer wraps the Xray MCP server with OAuth 2.1 authentication so
// it can be exposed beyond localhost without sharing the Xray credentials.
type OAuthHTTPServer struct {
	mcpServer    *mcpserver.MCPServer
	oauthServer  *oauth.Server
	oauthHandler *oauth.Handler
	mcpEndpoint  string
	lifecycle    lifecycle
}

// NewOAuthHTTPServer creates a new OAuth-enabled HTTP server for MCP.
func NewOAuthHTTPServer(mcpSrv *mcpserver.MCPServer, mcpEndpoint string, cfg OAuthConfig) (*OAuthHTTPServer, error) {
	if cfg.Provider != "" && cfg.Provider != OAuthProviderDex {
		return nil, fmt.Errorf("unsupported OAuth provider %q (supported: %s)", cfg.Provider, OAuthProviderDex)
	}

	if err := validateHTTPSRequirement(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("OAuth base URL validation failed: %w", err)
	}

	callbackURL := cfg.BaseURL + "/oauth/callback"
	dexProvider, err := dex.NewProvider(&dex.Config{
		IssuerURL:    cfg.DexIssuerURL,
		ClientID:     cfg.DexClientID,
		ClientSecret: cfg.DexClientSecret,
		RedirectURL:  callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Dex provider: %w", err)
	}

	return newOAuthHTTPServer(mcpSrv, mcpEndpoint, cfg.BaseURL, dexProvider)
}

// newOAuthHTTPServer wires an OAuth server around provider.
func newOAuthHTTPServer(mcpSrv *mcpserver.MCPServer, mcpEndpoint, baseURL string, provider providers.Provider) (*OAuthHTTPServer, error) {
	// Single replica; client registrations do not survive restarts.
	store := memory.New()

	logger := slog.Default()

	oauthSrv, err := oauth.NewServer(
		provider,
		store,
		store,
		store,
		&oauthserver.Config{
			Issuer:                    baseURL,
			AllowRefreshTokenRotation: true,
			MaxClientsPerIP:           10,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}

	return &OAuthHTTPServer{
		mcpServer:    mcpSrv,
		oauthServer:  oauthSrv,
		oauthHandler: oauth.NewHandler(oauthSrv, logger),
		mcpEndpoint:  mcpEndpoint,
	}, nil
}

// Handler returns the routed handler with OAuth endpoints and the MCP
// endpoint behind token validation.
func (s *OAuthHTTPServer) Handler() http.Handler {
	oauthRoutes := http.NewServeMux()
	s.oauthHandler.RegisterAuthorizationServerMetadataRoutes(oauthRoutes)
	s.oauthHandler.RegisterProtectedResourceMetadataRoutes(oauthRoutes, s.mcpEndpoint)

	r := newRouter()
	r.Route("/oauth", func(r chi.Router) {
		r.HandleFunc("/authorize", s.oauthHandler.ServeAuthorization)
		r.HandleFunc("/token", s.oauthHandler.ServeToken)
		r.HandleFunc("/callback", s.oauthHandler.ServeCallback)
		r.HandleFunc("/register", s.oauthHandler.ServeClientRegistration)
		r.HandleFunc("/revoke", s.oauthHandler.ServeTokenRevocation)
		r.HandleFunc("/introspect", s.oauthHandler.ServeTokenIntrospection)
	})

	mcpHandler := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(s.mcpEndpoint),
	)
	r.Handle(s.mcpEndpoint, s.oauthHandler.ValidateToken(mcpHandler))

	// Discovery documents live under /.well-known.
	r.NotFound(oauthRoutes.ServeHTTP)
	return r
}

// Start starts the OAuth-enabled HTTP server.
func (s *OAuthHTTPServer) Start(addr string) error {
	return s.lifecycle.listenAndServe(addr, s.Handler())
}

// Shutdown gracefully shuts down the server.
func (s *OAuthHTTPServer) Shutdown(ctx context.Context) error {
	if s.oauthServer != nil {
		if err := s.oauthServer.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OAuth server", "error", err)
		}
	}
	return s.lifecycle.shutdown(ctx)
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (must be http for localhost or https)", u.Scheme)
	}

	return nil
}
