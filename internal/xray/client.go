// Package xray talks to the Xray test management API. Two backends implement
// Client: CloudClient for Xray Cloud (token exchange + GraphQL) and
// ServerClient for Jira Server/Data Center (static auth header + REST).
package xray

import (
	"context"
	"fmt"
	"strings"
)

// Client is the capability surface shared by both backends. Every method
// returns an *Error on failure.
type Client interface {
	// ExecuteTests creates an execution containing testKeys.
	ExecuteTests(ctx context.Context, testKeys []string, opts ExecutionOptions) (*ExecutionResult, error)
	// GetTestExecution returns an execution with its test runs.
	GetTestExecution(ctx context.Context, executionKey string) (*TestExecution, error)
	// UpdateTestRun sets the result of testKey within executionKey.
	UpdateTestRun(ctx context.Context, executionKey, testKey string, data UpdateTestRunData) error

	ImportJUnit(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error)
	ImportCucumber(ctx context.Context, json string, opts ImportOptions) (*ImportResult, error)
	ImportXrayJSON(ctx context.Context, json string, opts ImportOptions) (*ImportResult, error)
	ImportRobot(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error)
	ImportTestNG(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error)

	// QueryExecutions lists executions matching filters. Ordering is backend specific.
	QueryExecutions(ctx context.Context, filters ExecutionFilters) ([]TestExecution, error)
	GetTest(ctx context.Context, testKey string) (*Test, error)
	GetTestPlan(ctx context.Context, planKey string) (*TestPlan, error)
	// CreateTestExecution creates an empty execution; tests are attached separately.
	CreateTestExecution(ctx context.Context, projectKey, summary string, opts ExecutionOptions) (*ExecutionResult, error)
	AssociateTestsToExecution(ctx context.Context, executionKey string, testKeys []string) error
}

var (
	_ Client = (*CloudClient)(nil)
	_ Client = (*ServerClient)(nil)
)

func errEmptyTestKeys() error {
	return &Error{
		Code:    ErrCodeInvalidRequest,
		Message: "Invalid request: at least one test key is required",
	}
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return limit
}

// ImportResults checks the keys in opts and routes content to the import
// operation matching format.
func ImportResults(ctx context.Context, c Client, format Format, content string, opts ImportOptions) (*ImportResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	switch format {
	case FormatJUnit:
		return c.ImportJUnit(ctx, content, opts)
	case FormatCucumber:
		return c.ImportCucumber(ctx, content, opts)
	case FormatXrayJSON:
		return c.ImportXrayJSON(ctx, content, opts)
	case FormatRobot:
		return c.ImportRobot(ctx, content, opts)
	case FormatTestNG:
		return c.ImportTestNG(ctx, content, opts)
	}

	names := make([]string, 0, len(Formats))
	for _, f := range Formats {
		names = append(names, string(f))
	}
	return nil, &Error{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("Unsupported format: %s. Supported formats: %s", format, strings.Join(names, ", ")),
	}
}
