package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/xray-mcp-server/internal/server"
	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

func statusNames() []string {
	names := make([]string, 0, len(xray.Statuses))
	for _, s := range xray.Statuses {
		names = append(names, string(s))
	}
	return names
}

func registerExecutionTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	executeTool := mcp.NewTool("execute_tests",
		mcp.WithDescription("Create a test execution containing the given tests"),
		mcp.WithArray("testKeys",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("Test issue keys to execute (e.g. [\"PROJ-1\", \"PROJ-2\"])"),
		),
		mcp.WithString("testPlanKey",
			mcp.Description("Test plan to associate the execution with"),
		),
		mcp.WithArray("testEnvironments",
			mcp.WithStringItems(),
			mcp.Description("Test environments for the execution"),
		),
		mcp.WithString("summary",
			mcp.Description("Execution summary (default: generated from the current time)"),
		),
		mcp.WithString("description",
			mcp.Description("Execution description"),
		),
	)
	addTool(s, sc, executeTool, handleExecuteTests)

	createTool := mcp.NewTool("create_test_execution",
		mcp.WithDescription("Create an empty test execution; attach tests with associate_tests_to_execution"),
		mcp.WithString("projectKey",
			mcp.Description("Jira project key (e.g. PROJ); defaults to the configured project"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Execution summary"),
		),
		mcp.WithString("description",
			mcp.Description("Execution description"),
		),
		mcp.WithString("testPlanKey",
			mcp.Description("Test plan to associate the execution with"),
		),
		mcp.WithArray("testEnvironments",
			mcp.WithStringItems(),
			mcp.Description("Test environments for the execution"),
		),
	)
	addTool(s, sc, createTool, handleCreateTestExecution)

	updateTool := mcp.NewTool("update_test_execution",
		mcp.WithDescription("Update the result of one test within a test execution"),
		mcp.WithString("executionKey",
			mcp.Required(),
			mcp.Description("Test execution key (e.g. PROJ-456)"),
		),
		mcp.WithString("testKey",
			mcp.Required(),
			mcp.Description("Test key (e.g. PROJ-123)"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Enum(statusNames()...),
			mcp.Description("New test run status"),
		),
		mcp.WithString("comment",
			mcp.Description("Comment for the test run"),
		),
		mcp.WithArray("defects",
			mcp.WithStringItems(),
			mcp.Description("Defect issue keys to link (Xray Server only)"),
		),
	)
	addTool(s, sc, updateTool, handleUpdateTestExecution)

	associateTool := mcp.NewTool("associate_tests_to_execution",
		mcp.WithDescription("Add tests to an existing test execution"),
		mcp.WithString("executionKey",
			mcp.Required(),
			mcp.Description("Test execution key (e.g. PROJ-456)"),
		),
		mcp.WithArray("testKeys",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("Test issue keys to add"),
		),
	)
	addTool(s, sc, associateTool, handleAssociateTests)

	getTool := mcp.NewTool("get_test_execution",
		mcp.WithDescription("Get a test execution with the status of each of its tests"),
		mcp.WithString("executionKey",
			mcp.Required(),
			mcp.Description("Test execution key (e.g. PROJ-456)"),
		),
	)
	addTool(s, sc, getTool, handleGetTestExecution)
}

// parseExecutionOptions reads the optional attributes of a new execution.
func parseExecutionOptions(args toolArgs) (xray.ExecutionOptions, error) {
	var opts xray.ExecutionOptions
	var err error

	if opts.TestPlanKey, err = args.optionalIssueKey("testPlanKey"); err != nil {
		return opts, err
	}
	if opts.TestEnvironments, err = args.optionalStrings("testEnvironments"); err != nil {
		return opts, err
	}
	if opts.Summary, err = args.optionalString("summary"); err != nil {
		return opts, err
	}
	if opts.Description, err = args.optionalString("description"); err != nil {
		return opts, err
	}
	return opts, nil
}

func handleExecuteTests(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := argsOf(request)

	testKeys, err := args.issueKeys("testKeys")
	if err != nil {
		return toolError(err), nil
	}
	opts, err := parseExecutionOptions(args)
	if err != nil {
		return toolError(err), nil
	}

	res, err := sc.Client.ExecuteTests(ctx, testKeys, opts)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Test execution created successfully:\n\nExecution Key: %s\nSummary: %s\nTests: %s",
		res.ExecutionKey, res.Summary, strings.Join(res.Tests, ", "),
	)), nil
}

func handleCreateTestExecution(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := argsOf(request)

	projectKey, err := args.projectKey(sc)
	if err != nil {
		return toolError(err), nil
	}
	summary, err := args.requiredString("summary")
	if err != nil {
		return toolError(err), nil
	}
	opts, err := parseExecutionOptions(args)
	if err != nil {
		return toolError(err), nil
	}

	res, err := sc.Client.CreateTestExecution(ctx, projectKey, summary, opts)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Test execution created:\n\nKey: %s\nSummary: %s", res.ExecutionKey, res.Summary,
	)), nil
}

func handleUpdateTestExecution(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := argsOf(request)

	executionKey, err := args.issueKey("executionKey")
	if err != nil {
		return toolError(err), nil
	}
	testKey, err := args.issueKey("testKey")
	if err != nil {
		return toolError(err), nil
	}
	rawStatus, err := args.requiredString("status")
	if err != nil {
		return toolError(err), nil
	}
	status, err := xray.ParseStatus(rawStatus)
	if err != nil {
		return toolError(err), nil
	}
	comment, err := args.optionalString("comment")
	if err != nil {
		return toolError(err), nil
	}
	defects, err := args.optionalStrings("defects")
	if err != nil {
		return toolError(err), nil
	}
	for _, d := range defects {
		if err := xray.ValidateTestKey(d); err != nil {
			return toolError(err), nil
		}
	}

	err = sc.Client.UpdateTestRun(ctx, executionKey, testKey, xray.UpdateTestRunData{
		Status:  status,
		Comment: comment,
		Defects: defects,
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Test %s in execution %s updated to status: %s", testKey, executionKey, status,
	)), nil
}

func handleAssociateTests(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := argsOf(request)

	executionKey, err := args.issueKey("executionKey")
	if err != nil {
		return toolError(err), nil
	}
	testKeys, err := args.issueKeys("testKeys")
	if err != nil {
		return toolError(err), nil
	}

	if err := sc.Client.AssociateTestsToExecution(ctx, executionKey, testKeys); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Successfully associated %d tests to execution %s", len(testKeys), executionKey,
	)), nil
}

func handleGetTestExecution(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	executionKey, err := argsOf(request).issueKey("executionKey")
	if err != nil {
		return toolError(err), nil
	}

	exec, err := sc.Client.GetTestExecution(ctx, executionKey)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult("", exec), nil
}
