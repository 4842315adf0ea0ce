package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/xray-mcp-server/internal/server"
	"github.com/giantswarm/xray-mcp-server/internal/testutil"
	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

func newRequest(args map[string]interface{}) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return request
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return content.Text
}

func newContext(client *testutil.MockXrayClient) *server.ServerContext {
	return &server.ServerContext{Client: client}
}

func TestHandleExecuteTests(t *testing.T) {
	client := &testutil.MockXrayClient{
		ExecutionResult: &xray.ExecutionResult{
			ExecutionKey: "PROJ-9",
			Summary:      "Nightly",
			Tests:        []string{"PROJ-1", "PROJ-2"},
		},
	}

	result, err := handleExecuteTests(context.Background(), newRequest(map[string]interface{}{
		"testKeys":         []interface{}{"PROJ-1", "PROJ-2"},
		"testPlanKey":      "PROJ-50",
		"testEnvironments": []interface{}{"staging"},
		"summary":          "Nightly",
	}), newContext(client))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t,
		"Test execution created successfully:\n\nExecution Key: PROJ-9\nSummary: Nightly\nTests: PROJ-1, PROJ-2",
		textOf(t, result))

	call := client.LastCall()
	assert.Equal(t, "ExecuteTests", call.Method)
	assert.Equal(t, []string{"PROJ-1", "PROJ-2"}, call.Args[0])
	assert.Equal(t, xray.ExecutionOptions{
		TestPlanKey:      "PROJ-50",
		TestEnvironments: []string{"staging"},
		Summary:          "Nightly",
	}, call.Args[1])
}

func TestHandleExecuteTestsValidation(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{
			name: "missing keys",
			args: map[string]interface{}{},
			want: "Error: testKeys must contain at least one item",
		},
		{
			name: "empty keys",
			args: map[string]interface{}{"testKeys": []interface{}{}},
			want: "Error: testKeys must contain at least one item",
		},
		{
			name: "malformed key",
			args: map[string]interface{}{"testKeys": []interface{}{"PROJ-1", "proj-2"}},
			want: `Error: Invalid test key format: "proj-2". Expected format: PROJECT-123`,
		},
		{
			name: "non string key",
			args: map[string]interface{}{"testKeys": []interface{}{42}},
			want: "Error: testKeys must be an array of strings",
		},
		{
			name: "malformed plan key",
			args: map[string]interface{}{"testKeys": []interface{}{"PROJ-1"}, "testPlanKey": "plan"},
			want: `Error: Invalid test key format: "plan". Expected format: PROJECT-123`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &testutil.MockXrayClient{}
			result, err := handleExecuteTests(context.Background(), newRequest(tt.args), newContext(client))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.want, textOf(t, result))
			assert.Zero(t, client.CallCount(), "no upstream call expected")
		})
	}
}

func TestHandleCreateTestExecution(t *testing.T) {
	client := &testutil.MockXrayClient{
		ExecutionResult: &xray.ExecutionResult{ExecutionKey: "PROJ-10", Summary: "Release 1.2", Tests: []string{}},
	}

	result, err := handleCreateTestExecution(context.Background(), newRequest(map[string]interface{}{
		"projectKey":  "PROJ",
		"summary":     "Release 1.2",
		"description": "regression",
	}), newContext(client))
	require.NoError(t, err)
	assert.Equal(t, "Test execution created:\n\nKey: PROJ-10\nSummary: Release 1.2", textOf(t, result))

	call := client.LastCall()
	assert.Equal(t, "CreateTestExecution", call.Method)
	assert.Equal(t, "PROJ", call.Args[0])
	assert.Equal(t, "Release 1.2", call.Args[1])
	assert.Equal(t, xray.ExecutionOptions{Description: "regression"}, call.Args[2])
}

func TestHandleCreateTestExecutionDefaultProject(t *testing.T) {
	client := &testutil.MockXrayClient{
		ExecutionResult: &xray.ExecutionResult{ExecutionKey: "OPS-1", Summary: "Smoke"},
	}
	sc := &server.ServerContext{Client: client, DefaultProject: "OPS"}

	result, err := handleCreateTestExecution(context.Background(), newRequest(map[string]interface{}{
		"summary": "Smoke",
	}), sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "OPS", client.LastCall().Args[0])
}

func TestHandleCreateTestExecutionMissingProject(t *testing.T) {
	client := &testutil.MockXrayClient{}

	result, err := handleCreateTestExecution(context.Background(), newRequest(map[string]interface{}{
		"summary": "Smoke",
	}), newContext(client))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error: projectKey is required", textOf(t, result))
	assert.Zero(t, client.CallCount())
}

func TestHandleCreateTestExecutionMissingSummary(t *testing.T) {
	client := &testutil.MockXrayClient{}

	result, err := handleCreateTestExecution(context.Background(), newRequest(map[string]interface{}{
		"projectKey": "PROJ",
		"summary":    "   ",
	}), newContext(client))
	require.NoError(t, err)
	assert.Equal(t, "Error: summary is required", textOf(t, result))
	assert.Zero(t, client.CallCount())
}

func TestHandleUpdateTestExecution(t *testing.T) {
	client := &testutil.MockXrayClient{}

	result, err := handleUpdateTestExecution(context.Background(), newRequest(map[string]interface{}{
		"executionKey": "PROJ-9",
		"testKey":      "PROJ-1",
		"status":       "FAIL",
		"comment":      "flaky",
		"defects":      []interface{}{"BUG-7"},
	}), newContext(client))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Test PROJ-1 in execution PROJ-9 updated to status: FAIL", textOf(t, result))

	call := client.LastCall()
	assert.Equal(t, "UpdateTestRun", call.Method)
	assert.Equal(t, "PROJ-9", call.Args[0])
	assert.Equal(t, "PROJ-1", call.Args[1])
	assert.Equal(t, xray.UpdateTestRunData{
		Status:  xray.StatusFail,
		Comment: "flaky",
		Defects: []string{"BUG-7"},
	}, call.Args[2])
}

func TestHandleUpdateTestExecutionInvalidStatus(t *testing.T) {
	for _, status := range []string{"passed", "pass", "SKIPPED"} {
		t.Run(status, func(t *testing.T) {
			client := &testutil.MockXrayClient{}
			result, err := handleUpdateTestExecution(context.Background(), newRequest(map[string]interface{}{
				"executionKey": "PROJ-9",
				"testKey":      "PROJ-1",
				"status":       status,
			}), newContext(client))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, textOf(t, result), "unknown test run status")
			assert.Zero(t, client.CallCount())
		})
	}
}

func TestHandleAssociateTests(t *testing.T) {
	client := &testutil.MockXrayClient{}

	result, err := handleAssociateTests(context.Background(), newRequest(map[string]interface{}{
		"executionKey": "PROJ-9",
		"testKeys":     []interface{}{"PROJ-1", "PROJ-2"},
	}), newContext(client))
	require.NoError(t, err)
	assert.Equal(t, "Successfully associated 2 tests to execution PROJ-9", textOf(t, result))
	assert.Equal(t, "AssociateTestsToExecution", client.LastCall().Method)
}

func TestHandleGetTestExecution(t *testing.T) {
	client := &testutil.MockXrayClient{
		Execution: &xray.TestExecution{
			Key:     "PROJ-9",
			ID:      "10009",
			Summary: "Nightly",
			Tests:   []xray.TestRun{{Key: "PROJ-1", Status: xray.StatusPass}},
		},
	}

	result, err := handleGetTestExecution(context.Background(), newRequest(map[string]interface{}{
		"executionKey": "PROJ-9",
	}), newContext(client))
	require.NoError(t, err)

	var got xray.TestExecution
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &got))
	assert.Equal(t, *client.Execution, got)
}

func TestHandleUpstreamError(t *testing.T) {
	client := &testutil.MockXrayClient{
		Err: &xray.Error{
			Code:       xray.ErrCodeNotFound,
			Message:    "Resource not found. Please check the issue key or test ID.",
			StatusCode: 404,
		},
	}

	result, err := handleGetTestExecution(context.Background(), newRequest(map[string]interface{}{
		"executionKey": "PROJ-404",
	}), newContext(client))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error: Resource not found. Please check the issue key or test ID.", textOf(t, result))
}

func TestHandleQueryTestExecutions(t *testing.T) {
	client := &testutil.MockXrayClient{
		Executions: []xray.TestExecution{{Key: "PROJ-9", ID: "10009", Summary: "Nightly"}},
	}

	result, err := handleQueryTestExecutions(context.Background(), newRequest(map[string]interface{}{
		"projectKey":  "PROJ",
		"testPlanKey": "PROJ-50",
		"status":      []interface{}{"PASS"},
		"startDate":   "2026-01-01",
	}), newContext(client))
	require.NoError(t, err)

	text := textOf(t, result)
	require.Contains(t, text, "Found 1 test executions:\n\n")
	assert.Contains(t, text, `"key": "PROJ-9"`)

	assert.Equal(t, xray.ExecutionFilters{
		ProjectKey:  "PROJ",
		TestPlanKey: "PROJ-50",
		Status:      []xray.Status{xray.StatusPass},
		StartDate:   "2026-01-01",
		Limit:       xray.DefaultQueryLimit,
	}, client.LastCall().Args[0])
}

func TestHandleQueryTestExecutionsEmpty(t *testing.T) {
	client := &testutil.MockXrayClient{}

	result, err := handleQueryTestExecutions(context.Background(), newRequest(map[string]interface{}{
		"projectKey": "PROJ",
		"limit":      float64(5),
	}), newContext(client))
	require.NoError(t, err)
	assert.Equal(t, "Found 0 test executions:\n\n[]", textOf(t, result))
	assert.Equal(t, 5, client.LastCall().Args[0].(xray.ExecutionFilters).Limit)
}

func TestHandleQueryTestExecutionsBadLimit(t *testing.T) {
	for _, limit := range []interface{}{float64(0), float64(-3), 2.5, "ten", float64(1001), 1e300} {
		client := &testutil.MockXrayClient{}
		result, err := handleQueryTestExecutions(context.Background(), newRequest(map[string]interface{}{
			"projectKey": "PROJ",
			"limit":      limit,
		}), newContext(client))
		require.NoError(t, err)
		assert.True(t, result.IsError, "limit %v", limit)
		assert.Zero(t, client.CallCount())
	}
}

func TestHandleQueryTestExecutionsBadDates(t *testing.T) {
	for name, args := range map[string]map[string]interface{}{
		"quote in start date": {"startDate": `2020-01-01" OR project = SECRET OR created >= "2020-01-01`},
		"free text end date":  {"endDate": "last week"},
		"day first":           {"startDate": "31-01-2026"},
	} {
		args["projectKey"] = "PROJ"
		client := &testutil.MockXrayClient{}
		result, err := handleQueryTestExecutions(context.Background(), newRequest(args), newContext(client))
		require.NoError(t, err)
		assert.True(t, result.IsError, name)
		assert.Contains(t, textOf(t, result), "Invalid date format", name)
		assert.Zero(t, client.CallCount(), name)
	}
}

func TestHandleQueryTestExecutionsAcceptsDateTime(t *testing.T) {
	client := &testutil.MockXrayClient{}
	result, err := handleQueryTestExecutions(context.Background(), newRequest(map[string]interface{}{
		"projectKey": "PROJ",
		"startDate":  "2026-01-01 08:00",
		"limit":      float64(1000),
	}), newContext(client))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, client.CallCount())
}

func TestHandleGetTestPlansHugeLimit(t *testing.T) {
	client := &testutil.MockXrayClient{}
	result, err := handleGetTestPlans(context.Background(), newRequest(map[string]interface{}{
		"projectKey": "PROJ",
		"limit":      1e300,
	}), newContext(client))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "limit must be at most 1000")
	assert.Zero(t, client.CallCount())
}

func TestHandleGetTestInfo(t *testing.T) {
	client := &testutil.MockXrayClient{
		Test: &xray.Test{Key: "PROJ-1", ID: "10001", Summary: "Login works", Type: "Manual"},
	}

	result, err := handleGetTestInfo(context.Background(), newRequest(map[string]interface{}{
		"testKey": "PROJ-1",
	}), newContext(client))
	require.NoError(t, err)
	assert.Contains(t, textOf(t, result), `"type": "Manual"`)
	assert.Equal(t, "PROJ-1", client.LastCall().Args[0])
}

func TestHandleGetTestPlans(t *testing.T) {
	client := &testutil.MockXrayClient{
		Executions: []xray.TestExecution{{Key: "PROJ-9"}, {Key: "PROJ-8"}},
	}
	sc := &server.ServerContext{Client: client, DefaultProject: "PROJ"}

	result, err := handleGetTestPlans(context.Background(), newRequest(map[string]interface{}{}), sc)
	require.NoError(t, err)

	var got []xray.TestExecution
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &got))
	assert.Len(t, got, 2)
	assert.Equal(t, xray.ExecutionFilters{ProjectKey: "PROJ", Limit: 50}, client.LastCall().Args[0])
}

func TestHandleGetTestPlan(t *testing.T) {
	client := &testutil.MockXrayClient{
		Plan: &xray.TestPlan{Key: "PROJ-50", ID: "10050", Summary: "Q3", Tests: []string{"PROJ-1"}},
	}

	result, err := handleGetTestPlan(context.Background(), newRequest(map[string]interface{}{
		"planKey": "PROJ-50",
	}), newContext(client))
	require.NoError(t, err)

	var got xray.TestPlan
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &got))
	assert.Equal(t, []string{"PROJ-1"}, got.Tests)
}

func TestHandleImportTestResults(t *testing.T) {
	tests := []struct {
		format string
		method string
	}{
		{"junit", "ImportJUnit"},
		{"cucumber", "ImportCucumber"},
		{"xray-json", "ImportXrayJSON"},
		{"robot", "ImportRobot"},
		{"testng", "ImportTestNG"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var res xray.ImportResult
			require.NoError(t, json.Unmarshal([]byte(`{"testExecIssue":{"id":"1","key":"PROJ-77"},"extra":true}`), &res))
			client := &testutil.MockXrayClient{ImportResult: &res}

			result, err := handleImportTestResults(context.Background(), newRequest(map[string]interface{}{
				"format":           tt.format,
				"results":          "<testsuite/>",
				"projectKey":       "PROJ",
				"testEnvironments": []interface{}{"linux"},
				"revision":         "abc123",
			}), newContext(client))
			require.NoError(t, err)
			assert.False(t, result.IsError)

			text := textOf(t, result)
			assert.Contains(t, text, "PROJ-77")
			assert.Contains(t, text, `"extra": true`)

			call := client.LastCall()
			assert.Equal(t, tt.method, call.Method)
			assert.Equal(t, "<testsuite/>", call.Args[0])
			assert.Equal(t, xray.ImportOptions{
				ProjectKey:       "PROJ",
				TestEnvironments: []string{"linux"},
				Revision:         "abc123",
			}, call.Args[1])
		})
	}
}

func TestHandleImportTestResultsUnsupportedFormat(t *testing.T) {
	client := &testutil.MockXrayClient{}

	result, err := handleImportTestResults(context.Background(), newRequest(map[string]interface{}{
		"format":     "junt",
		"results":    "<testsuite/>",
		"projectKey": "PROJ",
	}), newContext(client))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t,
		`Error: Unsupported format: junt. Supported formats: junit, cucumber, xray-json, robot, testng. Did you mean "junit"?`,
		textOf(t, result))
	assert.Zero(t, client.CallCount())
}

func TestClosestFormat(t *testing.T) {
	tests := map[string]string{
		"junt":     "junit",
		"JUnit":    "junit",
		"json":     "xray-json",
		"testnj":   "testng",
		"robt":     "robot",
		"cucumbr":  "cucumber",
		"markdown": "",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, closestFormat(in), "input %q", in)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	result, err := invoke(context.Background(), "boom", mcp.CallToolRequest{}, newContext(&testutil.MockXrayClient{}),
		func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error) {
			panic("nil map")
		})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error: internal error in boom", textOf(t, result))
}

func TestRegisterToolsRequiresClient(t *testing.T) {
	s := mcpserver.NewMCPServer("test", "0.0.0")
	assert.Error(t, RegisterTools(s, nil))
	assert.Error(t, RegisterTools(s, &server.ServerContext{}))
}

func TestRegisterToolsEndToEnd(t *testing.T) {
	client := &testutil.MockXrayClient{}
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterTools(s, newContext(client)))

	listed := handleMessage(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	var tools struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(listed, &tools))

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"import_test_results",
		"execute_tests",
		"create_test_execution",
		"update_test_execution",
		"associate_tests_to_execution",
		"get_test_execution",
		"query_test_executions",
		"get_test_info",
		"get_test_plans",
		"get_test_plan",
	}, names)

	called := handleMessage(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"associate_tests_to_execution","arguments":{"executionKey":"PROJ-9","testKeys":["PROJ-1"]}}}`)
	var res struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(called, &res))
	require.Len(t, res.Content, 1)
	assert.False(t, res.IsError)
	assert.Equal(t, "Successfully associated 1 tests to execution PROJ-9", res.Content[0].Text)
	assert.Equal(t, 1, client.CallCount())
}

// handleMessage sends one JSON-RPC message to s and returns the marshalled result.
func handleMessage(t *testing.T, s *mcpserver.MCPServer, msg string) []byte {
	t.Helper()
	resp, ok := s.HandleMessage(context.Background(), json.RawMessage(msg)).(mcp.JSONRPCResponse)
	require.True(t, ok, "expected a JSON-RPC response")
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	return data
}
