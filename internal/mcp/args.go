package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/xray-mcp-server/internal/server"
	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

// toolArgs wraps the raw arguments of a tool call. Every accessor reports
// malformed input as an INVALID_INPUT error so it surfaces before any
// upstream call.
type toolArgs map[string]any

func argsOf(request mcp.CallToolRequest) toolArgs {
	return toolArgs(request.GetArguments())
}

func invalidInput(format string, a ...any) error {
	return &xray.Error{Code: xray.ErrCodeInvalidInput, Message: fmt.Sprintf(format, a...)}
}

func (a toolArgs) optionalString(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidInput("%s must be a string", name)
	}
	return strings.TrimSpace(s), nil
}

func (a toolArgs) requiredString(name string) (string, error) {
	s, err := a.optionalString(name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", invalidInput("%s is required", name)
	}
	return s, nil
}

func (a toolArgs) optionalStrings(name string) ([]string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch items := v.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, invalidInput("%s must be an array of strings", name)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalidInput("%s must be an array of strings", name)
	}
}

func (a toolArgs) requiredStrings(name string) ([]string, error) {
	items, err := a.optionalStrings(name)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, invalidInput("%s must contain at least one item", name)
	}
	return items, nil
}

// maxLimit caps result limits; Jira serves at most 1000 issues per search.
const maxLimit = 1000

func (a toolArgs) positiveInt(name string, def int) (int, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, invalidInput("%s must be a number", name)
		}
		f = parsed
	default:
		return 0, invalidInput("%s must be a number", name)
	}
	if f < 1 || f != math.Trunc(f) {
		return 0, invalidInput("%s must be a positive integer", name)
	}
	if f > maxLimit {
		return 0, invalidInput("%s must be at most %d", name, maxLimit)
	}
	return int(f), nil
}

func (a toolArgs) optionalDate(name string) (string, error) {
	date, err := a.optionalString(name)
	if err != nil || date == "" {
		return "", err
	}
	if err := xray.ValidateDate(date); err != nil {
		return "", err
	}
	return date, nil
}

// issueKey reads a required issue key and checks its format.
func (a toolArgs) issueKey(name string) (string, error) {
	key, err := a.requiredString(name)
	if err != nil {
		return "", err
	}
	if err := xray.ValidateTestKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func (a toolArgs) optionalIssueKey(name string) (string, error) {
	key, err := a.optionalString(name)
	if err != nil || key == "" {
		return "", err
	}
	if err := xray.ValidateTestKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func (a toolArgs) issueKeys(name string) ([]string, error) {
	keys, err := a.requiredStrings(name)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if err := xray.ValidateTestKey(key); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// projectKey reads projectKey, falling back to the configured default project.
func (a toolArgs) projectKey(sc *server.ServerContext) (string, error) {
	key, err := a.optionalString("projectKey")
	if err != nil {
		return "", err
	}
	if key == "" {
		key = sc.DefaultProject
	}
	if key == "" {
		return "", invalidInput("projectKey is required")
	}
	if err := xray.ValidateProjectKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("Error: " + err.Error())
}

func jsonResult(prefix string, v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(fmt.Errorf("failed to marshal result: %w", err))
	}
	return mcp.NewToolResultText(prefix + string(data))
}
