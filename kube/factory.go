package kube

import (
	"fmt"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-workspaces/core"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
)

type FactoryOption func(*ClientFactory)

// WithDiscoveryCache shares API group lookups across every client the
// factory creates.
func WithDiscoveryCache(cache repositorycache.CacheService) FactoryOption {
	return func(f *ClientFactory) {
		f.cache = cache
	}
}

func WithDynamicBuilder(fn func(*rest.Config) (dynamic.Interface, error)) FactoryOption {
	return func(f *ClientFactory) {
		if fn != nil {
			f.newDynamic = fn
		}
	}
}

func WithDiscoveryBuilder(fn func(*rest.Config) (discovery.DiscoveryInterface, error)) FactoryOption {
	return func(f *ClientFactory) {
		if fn != nil {
			f.newDiscovery = fn
		}
	}
}

// ClientFactory creates one Client per access token.
type ClientFactory struct {
	config       core.KubernetesConfig
	cache        repositorycache.CacheService
	newDynamic   func(*rest.Config) (dynamic.Interface, error)
	newDiscovery func(*rest.Config) (discovery.DiscoveryInterface, error)
}

func NewClientFactory(cfg core.KubernetesConfig, opts ...FactoryOption) *ClientFactory {
	factory := &ClientFactory{
		config: cfg,
		newDynamic: func(restConfig *rest.Config) (dynamic.Interface, error) {
			return dynamic.NewForConfig(restConfig)
		},
		newDiscovery: func(restConfig *rest.Config) (discovery.DiscoveryInterface, error) {
			return discovery.NewDiscoveryClientForConfig(restConfig)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func (f *ClientFactory) NewClient(token string) (core.ResourceClient, error) {
	restConfig, err := RESTConfig(f.config, token)
	if err != nil {
		return nil, err
	}
	dyn, err := f.newDynamic(restConfig)
	if err != nil {
		return nil, fmt.Errorf("kube: create dynamic client: %w", err)
	}
	dc, err := f.newDiscovery(restConfig)
	if err != nil {
		return nil, fmt.Errorf("kube: create discovery client: %w", err)
	}
	apiDiscovery, err := NewAPIDiscovery(dc, f.cache, firstNonEmpty(f.config.APIGroup, core.DefaultAPIGroup), restConfig.Host)
	if err != nil {
		return nil, err
	}
	client, err := NewClient(dyn, apiDiscovery, f.config)
	if err != nil {
		return nil, err
	}
	return client, nil
}

var _ core.ClientFactory = (*ClientFactory)(nil)
