package config

import (
	"context"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewKubernetesClient builds a clientset from a kubeconfig path (default
// loading rules when empty) or from the in-cluster service account.
func NewKubernetesClient(kubeconfig string, inCluster bool) (kubernetes.Interface, error) {
	var restConfig *rest.Config
	var err error

	if inCluster {
		restConfig, err = rest.InClusterConfig()
	} else {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if kubeconfig != "" {
			loadingRules.ExplicitPath = kubeconfig
		}
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules, &clientcmd.ConfigOverrides{},
		).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return client, nil
}

// ParseSecretRef splits "namespace/name"; a bare name uses defaultNamespace.
func ParseSecretRef(ref, defaultNamespace string) (namespace, name string, err error) {
	ns, n, found := strings.Cut(ref, "/")
	if !found {
		ns, n = defaultNamespace, ref
	}
	if ns == "" || n == "" || strings.Contains(n, "/") {
		return "", "", fmt.Errorf("invalid secret reference %q: expected [namespace/]name", ref)
	}
	return ns, n, nil
}

// SecretSource reads configuration keys from the data of a Kubernetes Secret.
// Keys are the environment variable names, e.g. XRAY_TOKEN.
func SecretSource(ctx context.Context, client kubernetes.Interface, namespace, name string) (Source, error) {
	secret, err := client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s/%s: %w", namespace, name, err)
	}

	values := map[string]string{}
	for _, key := range Keys {
		if v, ok := secret.Data[key]; ok {
			values[key] = strings.TrimSpace(string(v))
			continue
		}
		if v, ok := secret.StringData[key]; ok {
			values[key] = strings.TrimSpace(v)
		}
	}
	return NewMapSource("secret "+namespace+"/"+name, values), nil
}
