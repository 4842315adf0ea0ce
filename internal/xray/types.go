package xray

import "encoding/json"

// Status is the outcome of a single test within an execution.
type Status string

const (
	StatusPass      Status = "PASS"
	StatusFail      Status = "FAIL"
	StatusExecuting Status = "EXECUTING"
	StatusTodo      Status = "TODO"
	StatusAborted   Status = "ABORTED"
)

// Statuses lists every accepted test run status in display order.
var Statuses = []Status{StatusPass, StatusFail, StatusExecuting, StatusTodo, StatusAborted}

// Valid reports whether s is one of the accepted statuses. Matching is case-sensitive.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus converts a raw string into a Status, rejecting anything outside the enum.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", &Error{
			Code:    ErrCodeInvalidRequest,
			Message: "Invalid request: unknown test run status \"" + raw + "\". Expected one of PASS, FAIL, EXECUTING, TODO, ABORTED",
		}
	}
	return s, nil
}

// Format identifies a test results payload format accepted by the import operations.
type Format string

const (
	FormatJUnit    Format = "junit"
	FormatCucumber Format = "cucumber"
	FormatXrayJSON Format = "xray-json"
	FormatRobot    Format = "robot"
	FormatTestNG   Format = "testng"
)

// Formats lists every supported import format.
var Formats = []Format{FormatJUnit, FormatCucumber, FormatXrayJSON, FormatRobot, FormatTestNG}

// Valid reports whether f is a supported import format.
func (f Format) Valid() bool {
	for _, v := range Formats {
		if f == v {
			return true
		}
	}
	return false
}

// Test is a read-only projection of a test issue.
type Test struct {
	Key     string   `json:"key"`
	ID      string   `json:"id"`
	Summary string   `json:"summary"`
	Type    string   `json:"type"`
	Status  string   `json:"status,omitempty"`
	Labels  []string `json:"labels,omitempty"`
}

// TestExecution is an execution issue along with its test runs when fetched individually.
type TestExecution struct {
	Key              string    `json:"key"`
	ID               string    `json:"id"`
	Summary          string    `json:"summary"`
	Status           string    `json:"status,omitempty"`
	TestEnvironments []string  `json:"testEnvironments,omitempty"`
	TestPlanKey      string    `json:"testPlanKey,omitempty"`
	Tests            []TestRun `json:"tests,omitempty"`
	Created          string    `json:"created,omitempty"`
}

// TestRun is the result of one test within one execution.
type TestRun struct {
	Key      string   `json:"key"`
	Status   Status   `json:"status"`
	Comment  string   `json:"comment,omitempty"`
	Defects  []string `json:"defects,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// TestPlan groups tests that executions can be associated with.
type TestPlan struct {
	Key     string   `json:"key"`
	ID      string   `json:"id"`
	Summary string   `json:"summary"`
	Tests   []string `json:"tests,omitempty"`
}

// ExecutionOptions are the optional attributes of a newly created execution.
type ExecutionOptions struct {
	TestPlanKey      string
	TestEnvironments []string
	Summary          string
	Description      string
}

// ExecutionResult identifies a newly created execution.
type ExecutionResult struct {
	ExecutionKey string   `json:"executionKey"`
	ID           string   `json:"id"`
	Summary      string   `json:"summary"`
	Tests        []string `json:"tests"`
}

// ExecutionFilters narrows QueryExecutions.
type ExecutionFilters struct {
	ProjectKey  string
	TestPlanKey string
	// Status is accepted for interface parity; neither backend can filter
	// executions by run status, so it is not sent upstream.
	Status    []Status
	StartDate string
	EndDate   string
	Limit     int
}

// DefaultQueryLimit is used when ExecutionFilters.Limit is unset.
const DefaultQueryLimit = 50

// ImportOptions carries the metadata submitted alongside a results payload.
type ImportOptions struct {
	ProjectKey       string
	TestPlanKey      string
	TestEnvironments []string
	TestExecKey      string
	Revision         string
	FixVersion       string
}

// Validate checks the format of every key that is set.
func (o ImportOptions) Validate() error {
	if o.ProjectKey != "" {
		if err := ValidateProjectKey(o.ProjectKey); err != nil {
			return err
		}
	}
	for _, key := range []string{o.TestPlanKey, o.TestExecKey} {
		if key == "" {
			continue
		}
		if err := ValidateTestKey(key); err != nil {
			return err
		}
	}
	return nil
}

// IssueRef references an issue created or updated by an import.
type IssueRef struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self,omitempty"`
}

// ImportResult is passed through from the upstream import response. The
// known fields are decoded for callers that need them; marshalling always
// reproduces the upstream body unchanged.
type ImportResult struct {
	TestExecIssue *IssueRef  `json:"testExecIssue,omitempty"`
	TestIssues    []IssueRef `json:"testIssues,omitempty"`
	InfoMessages  []string   `json:"infoMessages,omitempty"`
	ErrorMessages []string   `json:"errorMessages,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON keeps the original body and decodes whichever known fields
// have a recognised shape. Depending on the Xray version testIssues is a
// list or an object with success and error lists; only successes are kept.
func (r *ImportResult) UnmarshalJSON(data []byte) error {
	*r = ImportResult{raw: append(json.RawMessage(nil), data...)}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	decodeField(fields, "testExecIssue", &r.TestExecIssue)
	decodeField(fields, "infoMessages", &r.InfoMessages)
	decodeField(fields, "errorMessages", &r.ErrorMessages)

	if raw := fields["testIssues"]; len(raw) > 0 && raw[0] == '{' {
		var split struct {
			Success []IssueRef `json:"success"`
		}
		decodeField(fields, "testIssues", &split)
		r.TestIssues = split.Success
	} else {
		decodeField(fields, "testIssues", &r.TestIssues)
	}
	return nil
}

// decodeField decodes fields[name] into v, leaving v as far as it got when
// the value has an unexpected shape.
func decodeField(fields map[string]json.RawMessage, name string, v any) {
	if raw, ok := fields[name]; ok {
		_ = json.Unmarshal(raw, v)
	}
}

// MarshalJSON returns the upstream body when one was decoded.
func (r ImportResult) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type plain ImportResult
	return json.Marshal(plain(r))
}

// UpdateTestRunData is the new state of a test run.
type UpdateTestRunData struct {
	Status  Status
	Comment string
	Defects []string
}
