// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"sync"

	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

// Call records one invocation of a MockXrayClient method.
type Call struct {
	Method string
	Args   []any
}

// MockXrayClient is a configurable xray.Client used across test packages.
// Each method returns its canned value (or Err when set) and records the call.
type MockXrayClient struct {
	mu    sync.Mutex
	Calls []Call

	// Err, when non-nil, is returned by every method.
	Err error

	ExecutionResult *xray.ExecutionResult
	Execution       *xray.TestExecution
	Executions      []xray.TestExecution
	ImportResult    *xray.ImportResult
	Test            *xray.Test
	Plan            *xray.TestPlan
}

var _ xray.Client = (*MockXrayClient)(nil)

func (m *MockXrayClient) record(method string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: method, Args: args})
	return m.Err
}

// LastCall returns the most recent call, or a zero Call.
func (m *MockXrayClient) LastCall() Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Call{}
	}
	return m.Calls[len(m.Calls)-1]
}

// CallCount returns the number of recorded calls.
func (m *MockXrayClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockXrayClient) ExecuteTests(_ context.Context, testKeys []string, opts xray.ExecutionOptions) (*xray.ExecutionResult, error) {
	if err := m.record("ExecuteTests", testKeys, opts); err != nil {
		return nil, err
	}
	return m.ExecutionResult, nil
}

func (m *MockXrayClient) GetTestExecution(_ context.Context, executionKey string) (*xray.TestExecution, error) {
	if err := m.record("GetTestExecution", executionKey); err != nil {
		return nil, err
	}
	return m.Execution, nil
}

func (m *MockXrayClient) UpdateTestRun(_ context.Context, executionKey, testKey string, data xray.UpdateTestRunData) error {
	return m.record("UpdateTestRun", executionKey, testKey, data)
}

func (m *MockXrayClient) importResults(method, content string, opts xray.ImportOptions) (*xray.ImportResult, error) {
	if err := m.record(method, content, opts); err != nil {
		return nil, err
	}
	return m.ImportResult, nil
}

func (m *MockXrayClient) ImportJUnit(_ context.Context, xml string, opts xray.ImportOptions) (*xray.ImportResult, error) {
	return m.importResults("ImportJUnit", xml, opts)
}

func (m *MockXrayClient) ImportCucumber(_ context.Context, json string, opts xray.ImportOptions) (*xray.ImportResult, error) {
	return m.importResults("ImportCucumber", json, opts)
}

func (m *MockXrayClient) ImportXrayJSON(_ context.Context, json string, opts xray.ImportOptions) (*xray.ImportResult, error) {
	return m.importResults("ImportXrayJSON", json, opts)
}

func (m *MockXrayClient) ImportRobot(_ context.Context, xml string, opts xray.ImportOptions) (*xray.ImportResult, error) {
	return m.importResults("ImportRobot", xml, opts)
}

func (m *MockXrayClient) ImportTestNG(_ context.Context, xml string, opts xray.ImportOptions) (*xray.ImportResult, error) {
	return m.importResults("ImportTestNG", xml, opts)
}

func (m *MockXrayClient) QueryExecutions(_ context.Context, filters xray.ExecutionFilters) ([]xray.TestExecution, error) {
	if err := m.record("QueryExecutions", filters); err != nil {
		return nil, err
	}
	return m.Executions, nil
}

func (m *MockXrayClient) GetTest(_ context.Context, testKey string) (*xray.Test, error) {
	if err := m.record("GetTest", testKey); err != nil {
		return nil, err
	}
	return m.Test, nil
}

func (m *MockXrayClient) GetTestPlan(_ context.Context, planKey string) (*xray.TestPlan, error) {
	if err := m.record("GetTestPlan", planKey); err != nil {
		return nil, err
	}
	return m.Plan, nil
}

func (m *MockXrayClient) CreateTestExecution(_ context.Context, projectKey, summary string, opts xray.ExecutionOptions) (*xray.ExecutionResult, error) {
	if err := m.record("CreateTestExecution", projectKey, summary, opts); err != nil {
		return nil, err
	}
	return m.ExecutionResult, nil
}

func (m *MockXrayClient) AssociateTestsToExecution(_ context.Context, executionKey string, testKeys []string) error {
	return m.record("AssociateTestsToExecution", executionKey, testKeys)
}
