package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giantswarm/mcp-oauth/providers/mock"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://xray-mcp.example.com"

func newTestOAuthServer(t *testing.T) *OAuthHTTPServer {
	t.Helper()
	srv, err := newOAuthHTTPServer(mcpserver.NewMCPServer("test", "0.0.0"), "/mcp", testBaseURL, mock.NewProvider())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func TestOAuthHandlerHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestOAuthServer(t).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestOAuthHandlerServesProtectedResourceMetadata(t *testing.T) {
	handler := newTestOAuthServer(t).Handler()

	for _, path := range []string{"/.well-known/oauth-protected-resource", "/.well-known/oauth-protected-resource/mcp"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)

		var meta struct {
			Resource             string   `json:"resource"`
			AuthorizationServers []string `json:"authorization_servers"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta), path)
		assert.Equal(t, []string{testBaseURL}, meta.AuthorizationServers, path)
		assert.True(t, strings.HasPrefix(meta.Resource, testBaseURL), path)
	}
}

func TestOAuthHandlerServesAuthorizationServerMetadata(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestOAuthServer(t).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, testBaseURL, meta["issuer"])
}

func TestOAuthHandlerRequiresBearerForMCP(t *testing.T) {
	handler := newTestOAuthServer(t).Handler()
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0.0.0"}}}`

	for name, auth := range map[string]string{
		"no header":    "",
		"basic scheme": "Basic dXNlcjpwYXNz",
	} {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer", name)
	}
}

func TestNewOAuthHTTPServerRejectsConfig(t *testing.T) {
	for name, cfg := range map[string]OAuthConfig{
		"unknown provider": {Provider: "github", BaseURL: testBaseURL},
		"plain http":       {Provider: OAuthProviderDex, BaseURL: "http://xray-mcp.example.com"},
		"missing base url": {Provider: OAuthProviderDex},
	} {
		_, err := NewOAuthHTTPServer(mcpserver.NewMCPServer("test", "0.0.0"), "/mcp", cfg)
		assert.Error(t, err, name)
	}
}

func TestValidateHTTPSRequirement(t *testing.T) {
	for _, baseURL := range []string{
		testBaseURL,
		"http://localhost:8080",
		"http://127.0.0.1:8080",
		"http://[::1]:8080",
	} {
		assert.NoError(t, validateHTTPSRequirement(baseURL), baseURL)
	}
	for _, baseURL := range []string{"", "http://example.com", "ftp://example.com"} {
		assert.Error(t, validateHTTPSRequirement(baseURL), baseURL)
	}
}
