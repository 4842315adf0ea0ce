package xray

import (
	"fmt"
	"strings"
)

// Both backends compose the same conjunction of clauses; only the issue type
// keyword, the plan function and the trailing sort differ.

func cloudJQL(f ExecutionFilters) string {
	clauses := []string{
		fmt.Sprintf("project = %s", f.ProjectKey),
		`type = "Test Execution"`,
	}
	if f.TestPlanKey != "" {
		clauses = append(clauses, fmt.Sprintf("issue in testPlan(%s)", f.TestPlanKey))
	}
	return strings.Join(append(clauses, dateClauses(f)...), " AND ")
}

func serverJQL(f ExecutionFilters) string {
	clauses := []string{
		fmt.Sprintf("project = %s", f.ProjectKey),
		`issuetype = "Test Execution"`,
	}
	if f.TestPlanKey != "" {
		clauses = append(clauses, fmt.Sprintf("issue in testPlanTests(%s)", jqlString(f.TestPlanKey)))
	}
	return strings.Join(append(clauses, dateClauses(f)...), " AND ") + " ORDER BY created DESC"
}

func dateClauses(f ExecutionFilters) []string {
	var clauses []string
	if f.StartDate != "" {
		clauses = append(clauses, "created >= "+jqlString(f.StartDate))
	}
	if f.EndDate != "" {
		clauses = append(clauses, "created <= "+jqlString(f.EndDate))
	}
	return clauses
}

// checkFilters validates the parts of the filters that end up inside the JQL.
func checkFilters(f ExecutionFilters) error {
	if err := ValidateProjectKey(f.ProjectKey); err != nil {
		return err
	}
	if f.TestPlanKey != "" {
		if err := ValidateTestKey(f.TestPlanKey); err != nil {
			return err
		}
	}
	for _, date := range []string{f.StartDate, f.EndDate} {
		if date == "" {
			continue
		}
		if err := ValidateDate(date); err != nil {
			return err
		}
	}
	return nil
}

var jqlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// jqlString quotes s as a JQL string literal.
func jqlString(s string) string {
	return `"` + jqlEscaper.Replace(s) + `"`
}
