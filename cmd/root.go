package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "xray-mcp-server",
	Short: "MCP server for Xray test management",
	Long: `xray-mcp-server exposes Xray test management through the Model Context
Protocol. It talks to Xray Cloud (client credentials + GraphQL) or to Xray on
Jira Server/Data Center (token or basic auth + REST), selected by XRAY_DEPLOYMENT.

Settings are read from the environment, a .env file, an optional YAML config
file and an optional Kubernetes Secret, in that order of precedence.

When run without subcommands, it starts the MCP server (equivalent to 'xray-mcp-server serve').`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			// stdout carries the stdio transport, so logs always go to stderr.
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	},
}

// serveCmd is stored so the root command can delegate to it by default.
var serveCmd *cobra.Command

var (
	buildCommit = "unknown"
	buildDate   = "unknown"
)

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// SetBuildInfo sets the commit and build date for the version command.
func SetBuildInfo(commit, date string) {
	buildCommit = commit
	buildDate = date
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "xray-mcp-server version %s\n" .Version}}`)

	// Default to the serve command when invoked without arguments. Run is used
	// instead of RunE since the root command cannot parse serve-specific flags.
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stderr, "No subcommand specified. Defaulting to 'serve' (stdio transport).")
		fmt.Fprintln(os.Stderr, "For HTTP transport or OAuth, use: xray-mcp-server serve --transport streamable-http")
		fmt.Fprintln(os.Stderr)
		if err := serveCmd.RunE(serveCmd, args); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	serveCmd = newServeCmd()
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newCheckCmd())

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file (ignored when missing)")
	rootCmd.PersistentFlags().String("credentials-secret", "", "Kubernetes Secret holding XRAY_* keys, as [namespace/]name")
	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to kubeconfig file (for --credentials-secret)")
	rootCmd.PersistentFlags().StringP("namespace", "n", "default", "Namespace of the credentials Secret when not given in the reference")
	rootCmd.PersistentFlags().Bool("in-cluster", false, "Use in-cluster Kubernetes authentication")
}
