package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/xray-mcp-server/internal/server"
	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

func formatNames() []string {
	names := make([]string, 0, len(xray.Formats))
	for _, f := range xray.Formats {
		names = append(names, string(f))
	}
	return names
}

func registerImportTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	importTool := mcp.NewTool("import_test_results",
		mcp.WithDescription("Import test execution results into Xray from JUnit, Cucumber, Xray JSON, Robot Framework or TestNG output"),
		mcp.WithString("format",
			mcp.Required(),
			mcp.Enum(formatNames()...),
			mcp.Description("Format of the results payload"),
		),
		mcp.WithString("results",
			mcp.Required(),
			mcp.Description("Results content (XML or JSON, as produced by the test framework)"),
		),
		mcp.WithString("projectKey",
			mcp.Description("Jira project key (e.g. PROJ); defaults to the configured project"),
		),
		mcp.WithString("testPlanKey",
			mcp.Description("Test plan to associate the execution with (e.g. PROJ-123)"),
		),
		mcp.WithArray("testEnvironments",
			mcp.WithStringItems(),
			mcp.Description("Test environments (e.g. [\"chrome\", \"staging\"])"),
		),
		mcp.WithString("testExecKey",
			mcp.Description("Existing execution to import into instead of creating a new one"),
		),
		mcp.WithString("revision",
			mcp.Description("Source code revision the results belong to"),
		),
		mcp.WithString("fixVersion",
			mcp.Description("Fix version to assign to the execution"),
		),
	)
	addTool(s, sc, importTool, handleImportTestResults)
}

// parseImportOptions reads the metadata shared by every import format.
func parseImportOptions(args toolArgs, sc *server.ServerContext) (xray.ImportOptions, error) {
	var opts xray.ImportOptions
	var err error

	if opts.ProjectKey, err = args.projectKey(sc); err != nil {
		return opts, err
	}
	if opts.TestPlanKey, err = args.optionalIssueKey("testPlanKey"); err != nil {
		return opts, err
	}
	if opts.TestExecKey, err = args.optionalIssueKey("testExecKey"); err != nil {
		return opts, err
	}
	if opts.TestEnvironments, err = args.optionalStrings("testEnvironments"); err != nil {
		return opts, err
	}
	if opts.Revision, err = args.optionalString("revision"); err != nil {
		return opts, err
	}
	if opts.FixVersion, err = args.optionalString("fixVersion"); err != nil {
		return opts, err
	}
	return opts, nil
}

func handleImportTestResults(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := argsOf(request)

	format, err := args.requiredString("format")
	if err != nil {
		return toolError(err), nil
	}
	results, err := args.requiredString("results")
	if err != nil {
		return toolError(err), nil
	}
	opts, err := parseImportOptions(args, sc)
	if err != nil {
		return toolError(err), nil
	}

	if !xray.Format(format).Valid() {
		return toolError(unsupportedFormat(format)), nil
	}

	res, err := xray.ImportResults(ctx, sc.Client, xray.Format(format), results, opts)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult("", res), nil
}

func unsupportedFormat(format string) error {
	msg := fmt.Sprintf("Unsupported format: %s. Supported formats: %s", format, strings.Join(formatNames(), ", "))
	if suggestion := closestFormat(format); suggestion != "" {
		msg += fmt.Sprintf(". Did you mean %q?", suggestion)
	}
	return invalidInput("%s", msg)
}

// closestFormat suggests the supported format nearest to an unknown one.
func closestFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return ""
	}

	best, bestDist := "", -1
	for _, name := range formatNames() {
		if fuzzy.MatchFold(format, name) || fuzzy.MatchFold(name, format) {
			return name
		}
		d := fuzzy.LevenshteinDistance(format, name)
		if bestDist < 0 || d < bestDist {
			best, bestDist = name, d
		}
	}
	if bestDist <= 2 {
		return best
	}
	return ""
}
