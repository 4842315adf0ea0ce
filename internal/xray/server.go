package xray

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultEnvironmentsField is the Jira field written with test environments.
	DefaultEnvironmentsField = "customfield_testEnvironments"

	executionIssueType = "Test Execution"
)

// ServerClient implements Client against Jira Server/Data Center with the
// Xray app installed. It addresses two APIs under the same base URL: Jira's
// issue API and Xray's REST API.
type ServerClient struct {
	jira              *endpoint
	xray              *endpoint
	environmentsField string
	now               func() time.Time
}

// NewServerClientWithToken authenticates with a personal access token.
func NewServerClientWithToken(baseURL, token string, opts ...Option) *ServerClient {
	return newServerClient(baseURL, "Bearer "+token, opts)
}

// NewServerClientWithBasicAuth authenticates with a username and password.
func NewServerClientWithBasicAuth(baseURL, username, password string, opts ...Option) *ServerClient {
	enc := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return newServerClient(baseURL, "Basic "+enc, opts)
}

func newServerClient(baseURL, authHeader string, opts []Option) *ServerClient {
	cfg := newClientConfig(opts)
	baseURL = strings.TrimRight(baseURL, "/")
	authorize := func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", authHeader)
		return nil
	}
	return &ServerClient{
		jira:              &endpoint{baseURL: baseURL + "/rest/api/2", client: cfg.httpClient, authorize: authorize},
		xray:              &endpoint{baseURL: baseURL + "/rest/raven/1.0/api", client: cfg.httpClient, authorize: authorize},
		environmentsField: cfg.environmentsField,
		now:               cfg.now,
	}
}

type issueRef struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// issue is a Jira issue whose fields are decoded lazily, since the test
// environments field name is configurable.
type issue struct {
	ID     string                     `json:"id"`
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

func (i issue) stringField(name string) string {
	var s string
	_ = json.Unmarshal(i.Fields[name], &s)
	return s
}

func (i issue) namedField(name string) string {
	var v struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(i.Fields[name], &v)
	return v.Name
}

func (i issue) stringsField(name string) []string {
	var v []string
	_ = json.Unmarshal(i.Fields[name], &v)
	return v
}

func (s *ServerClient) getIssue(ctx context.Context, key string, out *issue) error {
	return s.jira.do(ctx, request{method: http.MethodGet, path: "/issue/" + url.PathEscape(key)}, out)
}

func (s *ServerClient) post(ctx context.Context, ep *endpoint, path string, payload, out any) error {
	r, err := jsonRequest(http.MethodPost, path, payload)
	if err != nil {
		return Normalize(err)
	}
	return ep.do(ctx, r, out)
}

func (s *ServerClient) put(ctx context.Context, ep *endpoint, path string, payload, out any) error {
	r, err := jsonRequest(http.MethodPut, path, payload)
	if err != nil {
		return Normalize(err)
	}
	return ep.do(ctx, r, out)
}

func (s *ServerClient) defaultSummary() string {
	return "Test Execution - " + s.now().UTC().Format(time.RFC3339)
}

func (s *ServerClient) createIssueStep(fields map[string]any, created *issueRef) step {
	return step{name: "create execution issue", run: func(ctx context.Context) error {
		return s.post(ctx, s.jira, "/issue", map[string]any{"fields": fields}, created)
	}}
}

func (s *ServerClient) associateTestsStep(created *issueRef, testKeys []string) step {
	return step{name: "associate tests", run: func(ctx context.Context) error {
		return s.post(ctx, s.xray, "/testexec/"+url.PathEscape(created.Key)+"/test", map[string]any{"add": testKeys}, nil)
	}}
}

func (s *ServerClient) setEnvironmentsStep(created *issueRef, envs []string) step {
	return step{name: "set test environments", run: func(ctx context.Context) error {
		return s.put(ctx, s.jira, "/issue/"+url.PathEscape(created.Key), map[string]any{
			"fields": map[string]any{s.environmentsField: envs},
		}, nil)
	}}
}

func (s *ServerClient) linkPlanStep(created *issueRef, planKey string) step {
	return step{name: "link test plan", run: func(ctx context.Context) error {
		return s.post(ctx, s.xray, "/testplan/"+url.PathEscape(planKey)+"/testexecution", map[string]any{"add": []string{created.Key}}, nil)
	}}
}

func executionFields(projectKey, summary, description string) map[string]any {
	fields := map[string]any{
		"project":   map[string]string{"key": projectKey},
		"summary":   summary,
		"issuetype": map[string]string{"name": executionIssueType},
	}
	if description != "" {
		fields["description"] = description
	}
	return fields
}

// ExecuteTests creates an execution issue, attaches the tests, then
// optionally sets environments and links the plan. The project is taken
// from the first test key.
func (s *ServerClient) ExecuteTests(ctx context.Context, testKeys []string, opts ExecutionOptions) (*ExecutionResult, error) {
	if len(testKeys) == 0 {
		return nil, errEmptyTestKeys()
	}

	summary := opts.Summary
	if summary == "" {
		summary = s.defaultSummary()
	}

	var created issueRef
	steps := []step{
		s.createIssueStep(executionFields(projectOf(testKeys[0]), summary, opts.Description), &created),
		s.associateTestsStep(&created, testKeys),
	}
	if len(opts.TestEnvironments) > 0 {
		steps = append(steps, s.setEnvironmentsStep(&created, opts.TestEnvironments))
	}
	if opts.TestPlanKey != "" {
		steps = append(steps, s.linkPlanStep(&created, opts.TestPlanKey))
	}

	if err := runSteps(ctx, "execute tests", steps); err != nil {
		return nil, err
	}
	return &ExecutionResult{
		ExecutionKey: created.Key,
		ID:           created.ID,
		Summary:      summary,
		Tests:        append([]string(nil), testKeys...),
	}, nil
}

// CreateTestExecution creates the issue and, when a plan is given, links it.
func (s *ServerClient) CreateTestExecution(ctx context.Context, projectKey, summary string, opts ExecutionOptions) (*ExecutionResult, error) {
	fields := executionFields(projectKey, summary, opts.Description)
	if len(opts.TestEnvironments) > 0 {
		fields[s.environmentsField] = opts.TestEnvironments
	}

	var created issueRef
	steps := []step{s.createIssueStep(fields, &created)}
	if opts.TestPlanKey != "" {
		steps = append(steps, s.linkPlanStep(&created, opts.TestPlanKey))
	}

	if err := runSteps(ctx, "create test execution", steps); err != nil {
		return nil, err
	}
	return &ExecutionResult{
		ExecutionKey: created.Key,
		ID:           created.ID,
		Summary:      summary,
		Tests:        []string{},
	}, nil
}

type serverTestRun struct {
	ID     json.Number `json:"id"`
	Key    string      `json:"key"`
	Status string      `json:"status"`
}

// GetTestExecution fetches the issue and its tests concurrently.
func (s *ServerClient) GetTestExecution(ctx context.Context, executionKey string) (*TestExecution, error) {
	var (
		iss  issue
		runs []serverTestRun
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.getIssue(gctx, executionKey, &iss)
	})
	g.Go(func() error {
		return s.xray.do(gctx, request{method: http.MethodGet, path: "/testexec/" + url.PathEscape(executionKey) + "/test"}, &runs)
	})
	if err := g.Wait(); err != nil {
		return nil, Normalize(err)
	}

	exec := &TestExecution{
		Key:              iss.Key,
		ID:               iss.ID,
		Summary:          iss.stringField("summary"),
		Status:           iss.namedField("status"),
		TestEnvironments: iss.stringsField(s.environmentsField),
		Tests:            make([]TestRun, 0, len(runs)),
	}
	for _, r := range runs {
		exec.Tests = append(exec.Tests, TestRun{Key: r.Key, Status: Status(r.Status)})
	}
	return exec, nil
}

// UpdateTestRun resolves the run id of testKey within executionKey and
// updates it.
func (s *ServerClient) UpdateTestRun(ctx context.Context, executionKey, testKey string, data UpdateTestRunData) error {
	if _, err := ParseStatus(string(data.Status)); err != nil {
		return err
	}

	var run serverTestRun
	steps := []step{
		{name: "resolve test run", readOnly: true, run: func(ctx context.Context) error {
			q := url.Values{}
			q.Set("testExecIssueKey", executionKey)
			q.Set("testIssueKey", testKey)
			return s.xray.do(ctx, request{method: http.MethodGet, path: "/testrun", query: q}, &run)
		}},
		{name: "update test run", run: func(ctx context.Context) error {
			if run.ID == "" {
				return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("Resource not found: no run of %s in %s.", testKey, executionKey)}
			}
			body := map[string]any{"status": string(data.Status)}
			if data.Comment != "" {
				body["comment"] = data.Comment
			}
			if len(data.Defects) > 0 {
				body["defects"] = map[string]any{"add": data.Defects}
			}
			return s.put(ctx, s.xray, "/testrun/"+run.ID.String(), body, nil)
		}},
	}
	return runSteps(ctx, "update test run", steps)
}

// AssociateTestsToExecution adds tests to an existing execution.
func (s *ServerClient) AssociateTestsToExecution(ctx context.Context, executionKey string, testKeys []string) error {
	if len(testKeys) == 0 {
		return errEmptyTestKeys()
	}
	return s.post(ctx, s.xray, "/testexec/"+url.PathEscape(executionKey)+"/test", map[string]any{"add": testKeys}, nil)
}

// QueryExecutions searches with JQL, newest first.
func (s *ServerClient) QueryExecutions(ctx context.Context, filters ExecutionFilters) ([]TestExecution, error) {
	if err := checkFilters(filters); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("jql", serverJQL(filters))
	q.Set("maxResults", fmt.Sprint(limitOrDefault(filters.Limit)))
	q.Set("fields", "key,summary,status,created")

	var resp struct {
		Issues []issue `json:"issues"`
	}
	if err := s.jira.do(ctx, request{method: http.MethodGet, path: "/search", query: q}, &resp); err != nil {
		return nil, err
	}

	out := make([]TestExecution, 0, len(resp.Issues))
	for _, iss := range resp.Issues {
		out = append(out, TestExecution{
			Key:     iss.Key,
			ID:      iss.ID,
			Summary: iss.stringField("summary"),
			Status:  iss.namedField("status"),
			Created: iss.stringField("created"),
		})
	}
	return out, nil
}

// GetTest fetches a test issue.
func (s *ServerClient) GetTest(ctx context.Context, testKey string) (*Test, error) {
	var iss issue
	if err := s.getIssue(ctx, testKey, &iss); err != nil {
		return nil, err
	}
	t := &Test{
		Key:     iss.Key,
		ID:      iss.ID,
		Summary: iss.stringField("summary"),
		Type:    iss.namedField("issuetype"),
		Status:  iss.namedField("status"),
		Labels:  iss.stringsField("labels"),
	}
	if t.Type == "" {
		t.Type = "Test"
	}
	return t, nil
}

// GetTestPlan fetches the plan issue and its tests concurrently.
func (s *ServerClient) GetTestPlan(ctx context.Context, planKey string) (*TestPlan, error) {
	var (
		iss   issue
		tests []struct {
			Key string `json:"key"`
		}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.getIssue(gctx, planKey, &iss)
	})
	g.Go(func() error {
		return s.xray.do(gctx, request{method: http.MethodGet, path: "/testplan/" + url.PathEscape(planKey) + "/test"}, &tests)
	})
	if err := g.Wait(); err != nil {
		return nil, Normalize(err)
	}

	plan := &TestPlan{
		Key:     iss.Key,
		ID:      iss.ID,
		Summary: iss.stringField("summary"),
		Tests:   make([]string, 0, len(tests)),
	}
	for _, t := range tests {
		plan.Tests = append(plan.Tests, t.Key)
	}
	return plan, nil
}

// importInfo is the execution metadata submitted with a results payload.
type importInfo struct {
	Fields importFields `json:"fields"`
}

type importFields struct {
	Project struct {
		Key string `json:"key"`
	} `json:"project"`
	Summary   string `json:"summary"`
	IssueType struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	TestEnvironments []string `json:"testEnvironments,omitempty"`
	TestPlanKey      string   `json:"testPlanKey,omitempty"`
	FixVersions      []struct {
		Name string `json:"name"`
	} `json:"fixVersions,omitempty"`
}

func (s *ServerClient) newImportInfo(opts ImportOptions) importInfo {
	var info importInfo
	info.Fields.Project.Key = opts.ProjectKey
	info.Fields.Summary = s.defaultSummary()
	info.Fields.IssueType.Name = executionIssueType
	info.Fields.TestEnvironments = opts.TestEnvironments
	info.Fields.TestPlanKey = opts.TestPlanKey
	if opts.FixVersion != "" {
		info.Fields.FixVersions = []struct {
			Name string `json:"name"`
		}{{Name: opts.FixVersion}}
	}
	return info
}

// queryParams flattens the metadata for the endpoints that take it as
// query parameters next to a raw report body.
func (info importInfo) queryParams(opts ImportOptions) url.Values {
	q := url.Values{}
	q.Set("projectKey", info.Fields.Project.Key)
	if opts.TestExecKey != "" {
		q.Set("testExecKey", opts.TestExecKey)
	}
	if info.Fields.TestPlanKey != "" {
		q.Set("testPlanKey", info.Fields.TestPlanKey)
	}
	if len(info.Fields.TestEnvironments) > 0 {
		q.Set("testEnvironments", strings.Join(info.Fields.TestEnvironments, ";"))
	}
	if opts.FixVersion != "" {
		q.Set("fixVersion", opts.FixVersion)
	}
	if opts.Revision != "" {
		q.Set("revision", opts.Revision)
	}
	return q
}

func (s *ServerClient) importRaw(ctx context.Context, path, content, contentType string, query url.Values) (*ImportResult, error) {
	var res ImportResult
	if err := s.xray.do(ctx, rawRequest(path, content, contentType, query), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ImportJUnit submits a JUnit report with the metadata as query parameters.
func (s *ServerClient) ImportJUnit(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error) {
	info := s.newImportInfo(opts)
	return s.importRaw(ctx, "/import/execution/junit", xml, "application/xml", info.queryParams(opts))
}

// ImportRobot submits a Robot Framework report with the metadata as query parameters.
func (s *ServerClient) ImportRobot(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error) {
	info := s.newImportInfo(opts)
	return s.importRaw(ctx, "/import/execution/robot", xml, "application/xml", info.queryParams(opts))
}

// ImportTestNG submits a TestNG report with the metadata as query parameters.
func (s *ServerClient) ImportTestNG(ctx context.Context, xml string, opts ImportOptions) (*ImportResult, error) {
	info := s.newImportInfo(opts)
	return s.importRaw(ctx, "/import/execution/testng", xml, "application/xml", info.queryParams(opts))
}

// ImportCucumber wraps the metadata as a JSON string next to the raw report
// in a single JSON body.
func (s *ServerClient) ImportCucumber(ctx context.Context, report string, opts ImportOptions) (*ImportResult, error) {
	info, err := json.Marshal(s.newImportInfo(opts))
	if err != nil {
		return nil, Normalize(fmt.Errorf("failed to encode import info: %w", err))
	}
	payload := map[string]string{
		"info":   string(info),
		"result": report,
	}

	var res ImportResult
	if err := s.post(ctx, s.xray, "/import/execution/cucumber", payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ImportXrayJSON submits an Xray JSON report unchanged.
func (s *ServerClient) ImportXrayJSON(ctx context.Context, report string, _ ImportOptions) (*ImportResult, error) {
	return s.importRaw(ctx, "/import/execution", report, "application/json", nil)
}
