package xray

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const userAgent = "xray-mcp-server"

// authorizeFunc sets credentials on an outgoing request.
type authorizeFunc func(ctx context.Context, req *http.Request) error

// endpoint is one upstream base URL sharing an HTTP client and an auth scheme.
type endpoint struct {
	baseURL   string
	client    *http.Client
	authorize authorizeFunc
}

// request describes a single upstream call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func jsonRequest(method, path string, payload any) (request, error) {
	r := request{method: method, path: path}
	if payload == nil {
		return r, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return r, fmt.Errorf("failed to encode request body: %w", err)
	}
	r.body = bytes.NewReader(b)
	r.contentType = "application/json"
	return r, nil
}

func rawRequest(path string, content, contentType string, query url.Values) request {
	return request{
		method:      http.MethodPost,
		path:        path,
		query:       query,
		body:        strings.NewReader(content),
		contentType: contentType,
	}
}

// do performs the call and decodes a 2xx JSON body into out (when non-nil).
// Every failure is returned normalized.
func (e *endpoint) do(ctx context.Context, r request, out any) error {
	b, err := e.send(ctx, r)
	if err != nil {
		return Normalize(err)
	}
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return Normalize(fmt.Errorf("failed to decode response from %s: %w", r.path, err))
	}
	return nil
}

func (e *endpoint) send(ctx context.Context, r request) ([]byte, error) {
	u := e.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if e.authorize != nil {
		if err := e.authorize(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	slog.Debug("xray upstream call",
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: b}
	}
	return b, nil
}
