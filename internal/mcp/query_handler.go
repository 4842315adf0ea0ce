package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/xray-mcp-server/internal/server"
	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

func registerQueryTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	queryTool := mcp.NewTool("query_test_executions",
		mcp.WithDescription("Search test executions of a project"),
		mcp.WithString("projectKey",
			mcp.Description("Jira project key (e.g. PROJ); defaults to the configured project"),
		),
		mcp.WithString("testPlanKey",
			mcp.Description("Only executions of this test plan"),
		),
		mcp.WithArray("status",
			mcp.WithStringItems(),
			mcp.Description("Accepted for compatibility; executions cannot be filtered by run status upstream"),
		),
		mcp.WithString("startDate",
			mcp.Description("Created on or after this date (YYYY-MM-DD or YYYY-MM-DD HH:mm)"),
		),
		mcp.WithString("endDate",
			mcp.Description("Created on or before this date (YYYY-MM-DD or YYYY-MM-DD HH:mm)"),
		),
		mcp.WithNumber("limit",
			mcp.DefaultNumber(xray.DefaultQueryLimit),
			mcp.Description("Maximum number of executions to return"),
		),
	)
	addTool(s, sc, queryTool, handleQueryTestExecutions)

	testTool := mcp.NewTool("get_test_info",
		mcp.WithDescription("Get details of a test"),
		mcp.WithString("testKey",
			mcp.Required(),
			mcp.Description("Test key (e.g. PROJ-123)"),
		),
	)
	addTool(s, sc, testTool, handleGetTestInfo)

	plansTool := mcp.NewTool("get_test_plans",
		mcp.WithDescription("List recent test executions of a project, the entry point for reviewing test plan activity"),
		mcp.WithString("projectKey",
			mcp.Description("Jira project key (e.g. PROJ); defaults to the configured project"),
		),
		mcp.WithNumber("limit",
			mcp.DefaultNumber(xray.DefaultQueryLimit),
			mcp.Description("Maximum number of results"),
		),
	)
	addTool(s, sc, plansTool, handleGetTestPlans)

	planTool := mcp.NewTool("get_test_plan",
		mcp.WithDescription("Get a test plan and the keys of the tests it contains"),
		mcp.WithString("planKey",
			mcp.Required(),
			mcp.Description("Test plan key (e.g. PROJ-50)"),
		),
	)
	addTool(s, sc, planTool, handleGetTestPlan)
}

func handleQueryTestExecutions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := argsOf(request)

	filters, err := parseExecutionFilters(args, sc)
	if err != nil {
		return toolError(err), nil
	}

	execs, err := sc.Client.QueryExecutions(ctx, filters)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(fmt.Sprintf("Found %d test executions:\n\n", len(execs)), nonNil(execs)), nil
}

func parseExecutionFilters(args toolArgs, sc *server.ServerContext) (xray.ExecutionFilters, error) {
	var f xray.ExecutionFilters
	var err error

	if f.ProjectKey, err = args.projectKey(sc); err != nil {
		return f, err
	}
	if f.TestPlanKey, err = args.optionalIssueKey("testPlanKey"); err != nil {
		return f, err
	}
	statuses, err := args.optionalStrings("status")
	if err != nil {
		return f, err
	}
	for _, raw := range statuses {
		s, err := xray.ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = append(f.Status, s)
	}
	if f.StartDate, err = args.optionalDate("startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = args.optionalDate("endDate"); err != nil {
		return f, err
	}
	if f.Limit, err = args.positiveInt("limit", xray.DefaultQueryLimit); err != nil {
		return f, err
	}
	return f, nil
}

func handleGetTestInfo(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	testKey, err := argsOf(request).issueKey("testKey")
	if err != nil {
		return toolError(err), nil
	}

	test, err := sc.Client.GetTest(ctx, testKey)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult("", test), nil
}

func handleGetTestPlans(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := argsOf(request)

	projectKey, err := args.projectKey(sc)
	if err != nil {
		return toolError(err), nil
	}
	limit, err := args.positiveInt("limit", xray.DefaultQueryLimit)
	if err != nil {
		return toolError(err), nil
	}

	execs, err := sc.Client.QueryExecutions(ctx, xray.ExecutionFilters{ProjectKey: projectKey, Limit: limit})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult("", nonNil(execs)), nil
}

func handleGetTestPlan(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	planKey, err := argsOf(request).issueKey("planKey")
	if err != nil {
		return toolError(err), nil
	}

	plan, err := sc.Client.GetTestPlan(ctx, planKey)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult("", plan), nil
}

// nonNil keeps an empty result rendering as [] rather than null.
func nonNil(execs []xray.TestExecution) []xray.TestExecution {
	if execs == nil {
		return []xray.TestExecution{}
	}
	return execs
}
