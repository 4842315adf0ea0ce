package xray

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// tokenLifetime is how long an exchanged token is trusted. Xray issues
	// tokens valid for about 15 minutes.
	tokenLifetime = 14 * time.Minute
	// tokenExpiryBuffer forces a refresh when less than this remains.
	tokenExpiryBuffer = 60 * time.Second
)

type authState int

const (
	stateUnauthenticated authState = iota
	stateRefreshing
	stateAuthenticated
)

func (s authState) String() string {
	switch s {
	case stateRefreshing:
		return "refreshing"
	case stateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// tokenSource owns the cloud auth session:
// unauthenticated -> refreshing -> authenticated, and back to refreshing
// whenever the token is within tokenExpiryBuffer of expiry. Concurrent callers
// needing a refresh share one in-flight exchange.
type tokenSource struct {
	exchange func(ctx context.Context) (string, error)
	now      func() time.Time

	mu     sync.Mutex
	state  authState
	token  string
	expiry time.Time

	refresh singleflight.Group
}

func newTokenSource(exchange func(ctx context.Context) (string, error), now func() time.Time) *tokenSource {
	return &tokenSource{exchange: exchange, now: now}
}

// Token returns a bearer token valid for at least tokenExpiryBuffer.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := ts.current(); ok {
		return tok, nil
	}

	ch := ts.refresh.DoChan("token", func() (any, error) {
		// A caller may have finished a refresh between our check and this call.
		if tok, ok := ts.current(); ok {
			return tok, nil
		}
		ts.setState(stateRefreshing)

		// Shared by every waiting caller, so one caller's cancellation must not fail the rest.
		tok, err := ts.exchange(context.WithoutCancel(ctx))
		if err != nil {
			ts.setState(stateUnauthenticated)
			return "", err
		}
		ts.store(tok, ts.now().Add(tokenLifetime))
		slog.Info("xray cloud token refreshed", "expires_in", tokenLifetime.String())
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", &TransportError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (ts *tokenSource) current() (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.state == stateAuthenticated && ts.expiry.Sub(ts.now()) > tokenExpiryBuffer {
		return ts.token, true
	}
	return "", false
}

func (ts *tokenSource) store(token string, expiry time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = token
	ts.expiry = expiry
	ts.state = stateAuthenticated
}

func (ts *tokenSource) setState(s authState) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.state = s
}

func (ts *tokenSource) State() authState {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.state
}

// authenticate exchanges client credentials for a bearer token.
func (c *CloudClient) authenticate(ctx context.Context) (string, error) {
	r, err := jsonRequest(http.MethodPost, "/authenticate", map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return "", Normalize(err)
	}

	auth := &endpoint{baseURL: c.api.baseURL, client: c.api.client}
	b, err := auth.send(ctx, r)
	if err != nil {
		return "", Normalize(err)
	}

	// The token comes back as a JSON string; tolerate a bare one.
	var token string
	if err := json.Unmarshal(b, &token); err != nil {
		token = strings.TrimSpace(string(b))
	}
	if token == "" {
		return "", &Error{Code: ErrCodeAuthFailed, Message: "Authentication failed: empty token returned by Xray Cloud."}
	}
	return token, nil
}

func (c *CloudClient) authorize(ctx context.Context, req *http.Request) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("xray cloud authentication: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}
