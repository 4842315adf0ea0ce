package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/xray-mcp-server/internal/config"
	"github.com/giantswarm/xray-mcp-server/internal/xray"
)

// configSources builds the configuration sources from the persistent flags,
// highest precedence first: environment, .env file, YAML file, Kubernetes Secret.
func configSources(ctx context.Context, cmd *cobra.Command) ([]config.Source, error) {
	// Read from the root's persistent set so the values are also available
	// when serve runs as the default command without parsing its own flags.
	flags := cmd.Root().PersistentFlags()
	envFile, _ := flags.GetString("env-file")
	configFile, _ := flags.GetString("config")
	secretRef, _ := flags.GetString("credentials-secret")

	sources := []config.Source{config.EnvSource()}

	if envFile != "" {
		dotenv, err := config.DotEnvSource(envFile)
		if err != nil {
			return nil, err
		}
		sources = append(sources, dotenv)
	}

	if configFile != "" {
		file, err := config.FileSource(configFile)
		if err != nil {
			return nil, err
		}
		sources = append(sources, file)
	}

	if secretRef != "" {
		namespace, _ := flags.GetString("namespace")
		kubeconfig, _ := flags.GetString("kubeconfig")
		inCluster, _ := flags.GetBool("in-cluster")

		ns, name, err := config.ParseSecretRef(secretRef, namespace)
		if err != nil {
			return nil, err
		}
		client, err := config.NewKubernetesClient(kubeconfig, inCluster)
		if err != nil {
			return nil, err
		}
		secret, err := config.SecretSource(ctx, client, ns, name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, secret)
	}

	return sources, nil
}

// loadConfig resolves and validates the configuration for cmd.
func loadConfig(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	sources, err := configSources(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return config.Load(sources...)
}

// newXrayClientFromFlags loads the configuration and builds the matching backend.
func newXrayClientFromFlags(ctx context.Context, cmd *cobra.Command) (xray.Client, *config.Config, error) {
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := xray.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Xray client: %w", err)
	}
	return client, cfg, nil
}
