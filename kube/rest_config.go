package kube

import (
	"net"
	"os"
	"strings"

	"github.com/goliatone/go-workspaces/core"
	"k8s.io/client-go/rest"
)

const (
	EnvServiceHost = "KUBERNETES_SERVICE_HOST"
	EnvServicePort = "KUBERNETES_SERVICE_PORT"

	serviceAccountCAFile = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"
)

// InClusterHost returns the API server address advertised to pods, or an
// empty string outside a cluster.
func InClusterHost() string {
	host := strings.TrimSpace(os.Getenv(EnvServiceHost))
	port := strings.TrimSpace(os.Getenv(EnvServicePort))
	if host == "" || port == "" {
		return ""
	}
	return "https://" + net.JoinHostPort(host, port)
}

// RESTConfig builds a client config that authenticates with token only. The
// pod service account is never used for workspace calls.
func RESTConfig(cfg core.KubernetesConfig, token string) (*rest.Config, error) {
	host := strings.TrimSpace(cfg.Host)
	inCluster := false
	if host == "" {
		host = InClusterHost()
		inCluster = true
	}
	if host == "" {
		return nil, core.NewBadInput("kube: kubernetes.host is not set and " + EnvServiceHost + " is unavailable")
	}
	if strings.TrimSpace(token) == "" {
		return nil, core.NewBadInput("kube: bearer token is required")
	}

	caFile := strings.TrimSpace(cfg.CAFile)
	if caFile == "" && inCluster && !cfg.Insecure {
		if _, err := os.Stat(serviceAccountCAFile); err == nil {
			caFile = serviceAccountCAFile
		}
	}
	return &rest.Config{
		Host:        host,
		BearerToken: token,
		TLSClientConfig: rest.TLSClientConfig{
			CAFile:   caFile,
			Insecure: cfg.Insecure,
		},
	}, nil
}
