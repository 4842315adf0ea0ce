package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

func newCheckCmd() *cobra.Command {
	var connect bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and optionally test the connection",
		Long: `Resolve and validate the Xray configuration, then print it with secrets
masked. With --connect, a single execution query is sent against the default
project to verify credentials.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newXrayClientFromFlags(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			settings := cfg.Redacted()
			keys := make([]string, 0, len(settings))
			for k := range settings {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			_, _ = fmt.Fprintln(out, "Configuration is valid:")
			for _, k := range keys {
				_, _ = fmt.Fprintf(out, "  %s=%s\n", k, settings[k])
			}

			if !connect {
				return nil
			}
			if cfg.DefaultProject == "" {
				return fmt.Errorf("--connect requires XRAY_DEFAULT_PROJECT")
			}

			execs, err := client.QueryExecutions(cmd.Context(), xray.ExecutionFilters{
				ProjectKey: cfg.DefaultProject,
				Limit:      1,
			})
			if err != nil {
				return fmt.Errorf("connection check failed: %w", err)
			}
			_, _ = fmt.Fprintf(out, "Connection OK (%d execution(s) visible in %s)\n", len(execs), cfg.DefaultProject)
			return nil
		},
	}

	cmd.Flags().BoolVar(&connect, "connect", false, "Query the Xray API to verify credentials")

	return cmd
}
