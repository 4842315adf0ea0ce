package config

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/config.schema.json
var configSchema string

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = jsonschema.CompileString("config.schema.json", configSchema)
	})
	return compiledSchema, compileErr
}

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("Configuration validation failed:")
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return b.String()
}

var requiredMessages = map[string]string{
	KeyCloudClientID:     KeyCloudClientID + " is required for cloud deployment",
	KeyCloudClientSecret: KeyCloudClientSecret + " is required for cloud deployment",
	KeyJiraBaseURL:       KeyJiraBaseURL + " is required for server deployment",
	KeyAuthType:          KeyAuthType + ` must be set to "token" or "basic" for server deployment.`,
	KeyToken:             KeyToken + " is required when using token authentication",
	KeyUsername:          KeyUsername + " is required when using basic authentication",
	KeyPassword:          KeyPassword + " is required when using basic authentication",
}

var invalidMessages = map[string]string{
	KeyJiraBaseURL:       KeyJiraBaseURL + " must be a valid URL",
	KeyCloudBaseURL:      KeyCloudBaseURL + " must be a valid URL",
	KeyDefaultProject:    KeyDefaultProject + " must be a project key like PROJ",
	KeyEnvironmentsField: KeyEnvironmentsField + " must be a Jira field id like customfield_10100",
	KeyHTTPTimeout:       KeyHTTPTimeout + " must be a duration like 30s",
}

var quotedName = regexp.MustCompile(`'([^']+)'`)

// Validate checks values (keyed by environment variable name) for the
// deployment they select. Discriminants are checked first so a missing or
// unknown deployment is reported on its own.
func Validate(values map[string]string) error {
	switch Deployment(values[KeyDeployment]) {
	case DeploymentCloud:
	case DeploymentServer:
		if at := AuthType(values[KeyAuthType]); at != AuthToken && at != AuthBasic {
			return &ValidationError{Problems: []string{requiredMessages[KeyAuthType]}}
		}
	case "":
		return &ValidationError{Problems: []string{
			KeyDeployment + ` environment variable is required. Set it to "cloud" or "server".`,
		}}
	default:
		return &ValidationError{Problems: []string{
			fmt.Sprintf(`Invalid %s value: %q. Must be "cloud" or "server".`, KeyDeployment, values[KeyDeployment]),
		}}
	}

	s, err := schema()
	if err != nil {
		return fmt.Errorf("invalid embedded config schema: %w", err)
	}

	doc := make(map[string]any, len(values))
	for k, v := range values {
		if v != "" {
			doc[k] = v
		}
	}
	err = s.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("config schema validation: %w", err)
	}

	seen := map[string]bool{}
	var problems []string
	for _, leaf := range leafErrors(ve) {
		for _, p := range describe(leaf) {
			if !seen[p] {
				seen[p] = true
				problems = append(problems, p)
			}
		}
	}
	sort.Strings(problems)
	return &ValidationError{Problems: problems}
}

func leafErrors(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var out []*jsonschema.ValidationError
	for _, c := range err.Causes {
		out = append(out, leafErrors(c)...)
	}
	return out
}

// describe turns a schema failure into field-level messages naming the key.
func describe(leaf *jsonschema.ValidationError) []string {
	if strings.HasSuffix(leaf.KeywordLocation, "/required") {
		var out []string
		for _, m := range quotedName.FindAllStringSubmatch(leaf.Message, -1) {
			key := m[1]
			if msg, ok := requiredMessages[key]; ok {
				out = append(out, msg)
			} else {
				out = append(out, key+" is required")
			}
		}
		return out
	}

	key := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if msg, ok := invalidMessages[key]; ok {
		return []string{msg}
	}
	if key == "" {
		key = "/"
	}
	return []string{fmt.Sprintf("%s: %s", key, leaf.Message)}
}
