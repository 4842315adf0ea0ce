package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcptools "github.com/giantswarm/xray-mcp-server/internal/mcp"
	"github.com/giantswarm/xray-mcp-server/internal/server"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

func newServeCmd() *cobra.Command {
	var (
		transport    string
		httpAddr     string
		httpEndpoint string
		debug        bool

		// OAuth options.
		enableOAuth     bool
		oauthBaseURL    string
		oauthProvider   string
		dexIssuerURL    string
		dexClientID     string
		dexClientSecret string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server to expose Xray test management tools via the Model Context Protocol.

Supports multiple transport types:
  - stdio: Standard input/output (default, for IDE integration)
  - streamable-http: HTTP with streaming support (for remote access)

When using streamable-http transport, OAuth 2.1 authentication can be enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}

			// Set up graceful shutdown.
			shutdownCtx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			client, cfg, err := newXrayClientFromFlags(shutdownCtx, cmd)
			if err != nil {
				return err
			}
			slog.Info("xray client configured", "deployment", cfg.Deployment)

			sc := &server.ServerContext{
				Client:         client,
				DefaultProject: cfg.DefaultProject,
			}

			mcpSrv := mcpserver.NewMCPServer("xray-mcp-server", rootCmd.Version,
				mcpserver.WithToolCapabilities(true),
			)

			if err := mcptools.RegisterTools(mcpSrv, sc); err != nil {
				return fmt.Errorf("failed to register MCP tools: %w", err)
			}

			switch transport {
			case transportStdio:
				return runStdioServer(mcpSrv)
			case transportStreamableHTTP:
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Starting xray-mcp-server with %s transport...\n", transport)
				if enableOAuth {
					oauthSrv, err := newOAuthHTTPServer(mcpSrv, httpEndpoint, oauthConfig{
						baseURL:         oauthBaseURL,
						provider:        oauthProvider,
						dexIssuerURL:    dexIssuerURL,
						dexClientID:     dexClientID,
						dexClientSecret: dexClientSecret,
					})
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "OAuth-enabled HTTP server starting on %s\n", httpAddr)
					_, _ = fmt.Fprintf(out, "  Base URL: %s\n", oauthBaseURL)
					_, _ = fmt.Fprintf(out, "  MCP endpoint: %s (requires OAuth Bearer token)\n", httpEndpoint)
					_, _ = fmt.Fprintf(out, "  Health: /healthz\n")
					_, _ = fmt.Fprintf(out, "  OAuth endpoints: /.well-known/oauth-authorization-server, /oauth/{register,authorize,token,callback}\n")
					return runHTTPServer(shutdownCtx, oauthSrv, httpAddr)
				}
				_, _ = fmt.Fprintf(out, "  HTTP endpoint: %s\n", httpEndpoint)
				_, _ = fmt.Fprintf(out, "  Health: /healthz\n")
				return runHTTPServer(shutdownCtx, server.NewHTTPServer(mcpSrv, httpEndpoint), httpAddr)
			default:
				return fmt.Errorf("unsupported transport: %s (supported: stdio, streamable-http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http)")
	cmd.Flags().StringVar(&httpEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	// OAuth flags.
	cmd.Flags().BoolVar(&enableOAuth, "enable-oauth", false, "Enable OAuth 2.1 authentication (for HTTP transport)")
	cmd.Flags().StringVar(&oauthBaseURL, "oauth-base-url", "", "OAuth base URL (e.g. https://xray-mcp.example.com)")
	cmd.Flags().StringVar(&oauthProvider, "oauth-provider", "dex", "OAuth provider: dex")
	cmd.Flags().StringVar(&dexIssuerURL, "dex-issuer-url", "", "Dex OIDC issuer URL")
	cmd.Flags().StringVar(&dexClientID, "dex-client-id", "", "Dex OAuth client ID")
	cmd.Flags().StringVar(&dexClientSecret, "dex-client-secret", "", "Dex OAuth client secret")

	return cmd
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// httpTransport is implemented by both the plain and the OAuth HTTP servers.
type httpTransport interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

func runHTTPServer(ctx context.Context, srv httpTransport, addr string) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.Start(addr); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	slog.Info("HTTP server stopped")
	return nil
}

type oauthConfig struct {
	baseURL         string
	provider        string
	dexIssuerURL    string
	dexClientID     string
	dexClientSecret string
}

func newOAuthHTTPServer(mcpSrv *mcpserver.MCPServer, endpoint string, cfg oauthConfig) (*server.OAuthHTTPServer, error) {
	// Load credentials from env vars if not set via flags.
	if cfg.dexIssuerURL == "" {
		cfg.dexIssuerURL = os.Getenv("DEX_ISSUER_URL")
	}
	if cfg.dexClientID == "" {
		cfg.dexClientID = os.Getenv("DEX_CLIENT_ID")
	}
	if cfg.dexClientSecret == "" {
		cfg.dexClientSecret = os.Getenv("DEX_CLIENT_SECRET")
	}

	if cfg.baseURL == "" {
		return nil, fmt.Errorf("--oauth-base-url is required when --enable-oauth is set")
	}
	if cfg.dexIssuerURL == "" {
		return nil, fmt.Errorf("dex issuer URL is required (--dex-issuer-url or DEX_ISSUER_URL)")
	}
	if cfg.dexClientID == "" {
		return nil, fmt.Errorf("dex client ID is required (--dex-client-id or DEX_CLIENT_ID)")
	}
	if cfg.dexClientSecret == "" {
		return nil, fmt.Errorf("dex client secret is required (--dex-client-secret or DEX_CLIENT_SECRET)")
	}

	oauthSrv, err := server.NewOAuthHTTPServer(mcpSrv, endpoint, server.OAuthConfig{
		BaseURL:         cfg.baseURL,
		Provider:        cfg.provider,
		DexIssuerURL:    cfg.dexIssuerURL,
		DexClientID:     cfg.dexClientID,
		DexClientSecret: cfg.dexClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth HTTP server: %w", err)
	}
	return oauthSrv, nil
}
