package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

func newImportCmd() *cobra.Command {
	var (
		format       string
		projectKey   string
		testPlanKey  string
		testExecKey  string
		environments []string
		revision     string
		fixVersion   string
	)

	formats := make([]string, 0, len(xray.Formats))
	for _, f := range xray.Formats {
		formats = append(formats, string(f))
	}

	cmd := &cobra.Command{
		Use:   "import <results-file>",
		Short: "Import a test results file into Xray",
		Long: `Import test results produced by a test framework into Xray, creating a
test execution (or updating the one given by --test-exec).

The upstream import response is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read results file: %w", err)
			}

			client, cfg, err := newXrayClientFromFlags(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			if projectKey == "" {
				projectKey = cfg.DefaultProject
			}
			if projectKey == "" {
				return fmt.Errorf("--project is required when XRAY_DEFAULT_PROJECT is not set")
			}
			opts := xray.ImportOptions{
				ProjectKey:       projectKey,
				TestPlanKey:      testPlanKey,
				TestExecKey:      testExecKey,
				TestEnvironments: environments,
				Revision:         revision,
				FixVersion:       fixVersion,
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			res, err := xray.ImportResults(cmd.Context(), client, xray.Format(format), string(content), opts)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal import result: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(xray.FormatJUnit), "Results format: "+strings.Join(formats, ", "))
	cmd.Flags().StringVarP(&projectKey, "project", "p", "", "Jira project key (defaults to XRAY_DEFAULT_PROJECT)")
	cmd.Flags().StringVar(&testPlanKey, "test-plan", "", "Test plan to associate the execution with")
	cmd.Flags().StringVar(&testExecKey, "test-exec", "", "Existing test execution to import into")
	cmd.Flags().StringSliceVar(&environments, "env", nil, "Test environment (repeatable)")
	cmd.Flags().StringVar(&revision, "revision", "", "Source code revision")
	cmd.Flags().StringVar(&fixVersion, "fix-version", "", "Fix version")

	return cmd
}
