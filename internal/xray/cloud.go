package xray

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultCloudBaseURL is the global Xray Cloud API root.
const DefaultCloudBaseURL = "https://xray.cloud.getxray.app/api/v2"

// CloudClient implements Client against Xray Cloud.
type CloudClient struct {
	clientID     string
	clientSecret string
	api          *endpoint
	tokens       *tokenSource
}

// NewCloudClient creates a client that authenticates with the given API key pair.
func NewCloudClient(clientID, clientSecret string, opts ...Option) *CloudClient {
	cfg := newClientConfig(opts)
	c := &CloudClient{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
	c.api = &endpoint{
		baseURL:   strings.TrimRight(cfg.cloudBaseURL, "/"),
		client:    cfg.httpClient,
		authorize: c.authorize,
	}
	c.tokens = newTokenSource(c.authenticate, cfg.now)
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

type graphQLResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []graphQLError             `json:"errors"`
}

// jiraFields is the projection returned by the jira(fields: [...]) resolver.
type jiraFields struct {
	Key     string   `json:"key"`
	Summary string   `json:"summary"`
	Labels  []string `json:"labels"`
	Created string   `json:"created"`
	Status  *struct {
		Name string `json:"name"`
	} `json:"status"`
}

func (f jiraFields) statusName() string {
	if f.Status == nil {
		return ""
	}
	return f.Status.Name
}

// graphql posts one operation and decodes data[field] into out. A null or
// missing field is reported as NOT_FOUND.
func (c *CloudClient) graphql(ctx context.Context, query, field string, variables map[string]any, out any) error {
	r, err := jsonRequest(http.MethodPost, "/graphql", graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return Normalize(err)
	}

	var resp graphQLResponse
	if err := c.api.do(ctx, r, &resp); err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return &Error{
			Code:    ErrCodeInvalidRequest,
			Message: "Invalid request: " + strings.Join(msgs, "; "),
			Details: resp.Errors,
		}
	}

	raw, ok := resp.Data[field]
	if !ok || string(raw) == "null" {
		return &Error{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("Resource not found: %s returned no data.", field),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return Normalize(fmt.Errorf("failed to decode %s: %w", field, err))
	}
	return nil
}

func missingField(op, field string) error {
	return &Error{
		Code:    ErrCodeUnknown,
		Message: fmt.Sprintf("Unexpected response from %s: missing %s", op, field),
	}
}

const createTestExecutionMutation = `
mutation CreateTestExecution($input: CreateTestExecutionInput!) {
  createTestExecution(input: $input) {
    testExecution {
      issueId
      jira(fields: ["key", "summary"])
    }
    createdTestRuns {
      issueId
    }
  }
}`

type createdExecution struct {
	TestExecution *struct {
		IssueID string      `json:"issueId"`
		Jira    *jiraFields `json:"jira"`
	} `json:"testExecution"`
}

func (c *CloudClient) createExecution(ctx context.Context, input map[string]any) (*ExecutionResult, error) {
	var data createdExecution
	if err := c.graphql(ctx, createTestExecutionMutation, "createTestExecution", map[string]any{"input": input}, &data); err != nil {
		return nil, err
	}
	if data.TestExecution == nil || data.TestExecution.Jira == nil {
		return nil, missingField("createTestExecution", "testExecution")
	}
	return &ExecutionResult{
		ExecutionKey: data.TestExecution.Jira.Key,
		ID:           data.TestExecution.IssueID,
		Summary:      data.TestExecution.Jira.Summary,
		Tests:        []string{},
	}, nil
}

// ExecuteTests creates an execution and its test runs in a single mutation.
func (c *CloudClient) ExecuteTests(ctx context.Context, testKeys []string, opts ExecutionOptions) (*ExecutionResult, error) {
	if len(testKeys) == 0 {
		return nil, errEmptyTestKeys()
	}
	input := map[string]any{"testIssueIds": testKeys}
	setOptional(input, opts)

	res, err := c.createExecution(ctx, input)
	if err != nil {
		return nil, err
	}
	res.Tests = append([]string(nil), testKeys...)
	return res, nil
}

// CreateTestExecution creates an execution without tests.
func (c *CloudClient) CreateTestExecution(ctx context.Context, projectKey, summary string, opts ExecutionOptions) (*ExecutionResult, error) {
	opts.Summary = summary
	input := map[string]any{"projectKey": projectKey}
	setOptional(input, opts)
	return c.createExecution(ctx, input)
}

func setOptional(input map[string]any, opts ExecutionOptions) {
	if opts.Summary != "" {
		input["summary"] = opts.Summary
	}
	if opts.Description != "" {
		input["description"] = opts.Description
	}
	if len(opts.TestEnvironments) > 0 {
		input["testEnvironments"] = opts.TestEnvironments
	}
	if opts.TestPlanKey != "" {
		input["testPlanIssueId"] = opts.TestPlanKey
	}
}

const getTestExecutionQuery = `
query GetTestExecution($issueId: String!) {
  getTestExecution(issueId: $issueId) {
    issueId
    jira(fields: ["key", "summary", "status"])
    testEnvironments
    testRuns(limit: 100) {
      results {
        test {
          issueId
          jira(fields: ["key"])
        }
        status {
          name
        }
        comment
        defects
      }
    }
  }
}`

type cloudTestRun struct {
	Test *struct {
		Jira *jiraFields `json:"jira"`
	} `json:"test"`
	Status *struct {
		Name string `json:"name"`
	} `json:"status"`
	Comment string   `json:"comment"`
	Defects []string `json:"defects"`
}

// GetTestExecution fetches an execution with its runs.
func (c *CloudClient) GetTestExecution(ctx context.Context, executionKey string) (*TestExecution, error) {
	var data struct {
		IssueID          string      `json:"issueId"`
		Jira             *jiraFields `json:"jira"`
		TestEnvironments []string    `json:"testEnvironments"`
		TestRuns         *struct {
			Results []cloudTestRun `json:"results"`
		} `json:"testRuns"`
	}
	if err := c.graphql(ctx, getTestExecutionQuery, "getTestExecution", map[string]any{"issueId": executionKey}, &data); err != nil {
		return nil, err
	}
	if data.Jira == nil {
		return nil, missingField("getTestExecution", "jira")
	}

	exec := &TestExecution{
		Key:              data.Jira.Key,
		ID:               data.IssueID,
		Summary:          data.Jira.Summary,
		Status:           data.Jira.statusName(),
		TestEnvironments: data.TestEnvironments,
		Tests:            []TestRun{},
	}
	if data.TestRuns != nil {
		for _, run := range data.TestRuns.Results {
			if run.Test == nil || run.Test.Jira == nil {
				continue
			}
			tr := TestRun{
				Key:     run.Test.Jira.Key,
				Comment: run.Comment,
				Defects: run.Defects,
			}
			if run.Status != nil {
				tr.Status = Status(run.Status.Name)
			}
			exec.Tests = append(exec.Tests, tr)
		}
	}
	return exec, nil
}

const updateTestRunMutation = `
mutation UpdateTestRunStatus($input: UpdateTestRunStatusInput!) {
  updateTestRunStatus(input: $input)
}`

// UpdateTestRun sets the status and comment of a run. Defects are not part
// of the cloud status mutation and are ignored here.
func (c *CloudClient) UpdateTestRun(ctx context.Context, executionKey, testKey string, data UpdateTestRunData) error {
	if _, err := ParseStatus(string(data.Status)); err != nil {
		return err
	}
	input := map[string]any{
		"testExecIssueId": executionKey,
		"testIssueId":     testKey,
		"status":          string(data.Status),
	}
	if data.Comment != "" {
		input["comment"] = data.Comment
	}
	return c.graphql(ctx, updateTestRunMutation, "updateTestRunStatus", map[string]any{"input": input}, nil)
}

const addTestsToExecutionMutation = `
mutation AddTestsToTestExecution($input: AddTestsToTestExecutionInput!) {
  addTestsToTestExecution(input: $input) {
    addedTests
    warning
  }
}`

// AssociateTestsToExecution adds tests to an existing execution.
func (c *CloudClient) AssociateTestsToExecution(ctx context.Context, executionKey string, testKeys []string) error {
	if len(testKeys) == 0 {
		return errEmptyTestKeys()
	}
	input := map[string]any{
		"testExecIssueId": executionKey,
		"testIssueIds":    testKeys,
	}
	return c.graphql(ctx, addTestsToExecutionMutation, "addTestsToTestExecution", map[string]any{"input": input}, nil)
}

const getTestExecutionsQuery = `
query GetTestExecutions($jql: String!, $limit: Int!) {
  getTestExecutions(jql: $jql, limit: $limit) {
    total
    results {
      issueId
      jira(fields: ["key", "summary", "status", "created"])
    }
  }
}`

// QueryExecutions searches executions with a JQL filter. Results are
// returned in the order Xray Cloud produces them; no sort is requested.
func (c *CloudClient) QueryExecutions(ctx context.Context, filters ExecutionFilters) ([]TestExecution, error) {
	if err := checkFilters(filters); err != nil {
		return nil, err
	}
	vars := map[string]any{
		"jql":   cloudJQL(filters),
		"limit": limitOrDefault(filters.Limit),
	}
	var data struct {
		Total   int `json:"total"`
		Results []struct {
			IssueID string      `json:"issueId"`
			Jira    *jiraFields `json:"jira"`
		} `json:"results"`
	}
	if err := c.graphql(ctx, getTestExecutionsQuery, "getTestExecutions", vars, &data); err != nil {
		return nil, err
	}

	out := make([]TestExecution, 0, len(data.Results))
	for _, r := range data.Results {
		if r.Jira == nil {
			continue
		}
		out = append(out, TestExecution{
			Key:     r.Jira.Key,
			ID:      r.IssueID,
			Summary: r.Jira.Summary,
			Status:  r.Jira.statusName(),
			Created: r.Jira.Created,
		})
	}
	return out, nil
}

const getTestQuery = `
query GetTest($issueId: String!) {
  getTest(issueId: $issueId) {
    issueId
    jira(fields: ["key", "summary", "labels", "status"])
    testType {
      name
    }
  }
}`

// GetTest fetches a single test.
func (c *CloudClient) GetTest(ctx context.Context, testKey string) (*Test, error) {
	var data struct {
		IssueID  string      `json:"issueId"`
		Jira     *jiraFields `json:"jira"`
		TestType *struct {
			Name string `json:"name"`
		} `json:"testType"`
	}
	if err := c.graphql(ctx, getTestQuery, "getTest", map[string]any{"issueId": testKey}, &data); err != nil {
		return nil, err
	}
	if data.Jira == nil {
		return nil, missingField("getTest", "jira")
	}

	t := &Test{
		Key:     data.Jira.Key,
		ID:      data.IssueID,
		Summary: data.Jira.Summary,
		Type:    "Test",
		Status:  data.Jira.statusName(),
		Labels:  data.Jira.Labels,
	}
	if data.TestType != nil && data.TestType.Name != "" {
		t.Type = data.TestType.Name
	}
	return t, nil
}

const getTestPlanQuery = `
query GetTestPlan($issueId: String!) {
  getTestPlan(issueId: $issueId) {
    issueId
    jira(fields: ["key", "summary"])
    tests(limit: 100) {
      total
      results {
        jira(fields: ["key"])
      }
    }
  }
}`

// GetTestPlan fetches a plan and the keys of its tests.
func (c *CloudClient) GetTestPlan(ctx context.Context, planKey string) (*TestPlan, error) {
	var data struct {
		IssueID string      `json:"issueId"`
		Jira    *jiraFields `json:"jira"`
		Tests   *struct {
			Results []struct {
				Jira *jiraFields `json:"jira"`
			} `json:"results"`
		} `json:"tests"`
	}
	if err := c.graphql(ctx, getTestPlanQuery, "getTestPlan", map[string]any{"issueId": planKey}, &data); err != nil {
		return nil, err
	}
	if data.Jira == nil {
		return nil, missingField("getTestPlan", "jira")
	}

	plan := &TestPlan{
		Key:     data.Jira.Key,
		ID:      data.IssueID,
		Summary: data.Jira.Summary,
	}
	if data.Tests != nil {
		for _, t := range data.Tests.Results {
			if t.Jira != nil {
				plan.Tests = append(plan.Tests, t.Jira.Key)
			}
		}
	}
	return plan, nil
}

// importQuery builds the query parameters understood by the cloud import endpoints.
func importQuery(opts ImportOptions, extended bool) url.Values {
	q := url.Values{}
	q.Set("projectKey", opts.ProjectKey)
	if opts.TestPlanKey != "" {
		q.Set("testPlanKey", opts.TestPlanKey)
	}
	if len(opts.TestEnvironments) > 0 {
		q.Set("testEnvironments", strings.Join(opts.TestEnvironments, ";"))
	}
	if !extended {
		return q
	}
	if opts.TestExecKey != "" {
		q.Set("testExecKey", opts.TestExecKey)
	}
	if opts.Revision != "" {
		q.Set("revision", opts.Revision)
	}
	if opts.FixVersion != "" {
		q.Set("fixVersion", opts.FixVersion)
	}
	return q
}

func (c *CloudClient) importResults(ctx context.Context, path, content, contentType string, query url.Values) (*ImportResult, error) {
	var res ImportResult
	if err := c.api.do(ctx, rawRequest(path, content, contentType, query), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ImportJUnit submits a JUnit XML report.
func (c *CloudClient) ImportJUnit(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error) {
	return c.importResults(ctx, "/import/execution/junit", xml, "application/xml", importQuery(opts, true))
}

// ImportCucumber submits a Cucumber JSON report.
func (c *CloudClient) ImportCucumber(ctx context.Context, report string, opts ImportOptions) (*ImportResult, error) {
	return c.importResults(ctx, "/import/execution/cucumber", report, "application/json", importQuery(opts, true))
}

// ImportXrayJSON submits an Xray JSON report; all metadata lives in the payload itself.
func (c *CloudClient) ImportXrayJSON(ctx context.Context, report string, _ ImportOptions) (*ImportResult, error) {
	return c.importResults(ctx, "/import/execution", report, "application/json", nil)
}

// ImportRobot submits a Robot Framework output.xml.
func (c *CloudClient) ImportRobot(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error) {
	return c.importResults(ctx, "/import/execution/robot", xml, "application/xml", importQuery(opts, false))
}

// ImportTestNG submits a TestNG XML report.
func (c *CloudClient) ImportTestNG(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error) {
	return c.importResults(ctx, "/import/execution/testng", xml, "application/xml", importQuery(opts, true))
}
