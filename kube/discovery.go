package kube

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"k8s.io/client-go/discovery"
)

const (
	OpenShiftProjectGroup = "project.openshift.io"

	apiGroupsCacheKeyPrefix = "go-workspaces::api_groups::v1"
)

// APIDiscovery answers which API groups the cluster serves. Group lists are
// cached per cluster host when a cache service is configured.
type APIDiscovery struct {
	client   discovery.DiscoveryInterface
	cache    repositorycache.CacheService
	apiGroup string
	cacheKey string
}

func NewAPIDiscovery(client discovery.DiscoveryInterface, cache repositorycache.CacheService, apiGroup, host string) (*APIDiscovery, error) {
	if client == nil {
		return nil, fmt.Errorf("kube: discovery client is required")
	}
	apiGroup = strings.TrimSpace(apiGroup)
	if apiGroup == "" {
		return nil, fmt.Errorf("kube: api group is required")
	}
	return &APIDiscovery{
		client:   client,
		cache:    cache,
		apiGroup: apiGroup,
		cacheKey: APIGroupsCacheKey(host),
	}, nil
}

// APIGroupsCacheKey returns go-workspaces::api_groups::v1::<host> with the
// host URL-path escaped.
func APIGroupsCacheKey(host string) string {
	return apiGroupsCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(host))
}

func (d *APIDiscovery) IsAPIEnabled(ctx context.Context) (bool, error) {
	return d.Serves(ctx, d.apiGroup)
}

func (d *APIDiscovery) IsOpenShift(ctx context.Context) (bool, error) {
	return d.Serves(ctx, OpenShiftProjectGroup)
}

func (d *APIDiscovery) Serves(ctx context.Context, group string) (bool, error) {
	groups, err := d.Groups(ctx)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(groups, group)
	return found, nil
}

// Groups returns the sorted API group names served by the cluster.
func (d *APIDiscovery) Groups(ctx context.Context) ([]string, error) {
	if d == nil || d.client == nil {
		return nil, fmt.Errorf("kube: api discovery is not configured")
	}
	if d.cache == nil {
		return d.fetchGroups(ctx)
	}
	groups, err := repositorycache.GetOrFetch(ctx, d.cache, d.cacheKey, d.fetchGroups)
	if err != nil {
		return nil, err
	}
	return slices.Clone(groups), nil
}

// Invalidate drops the cached group list so the next probe asks the cluster.
func (d *APIDiscovery) Invalidate(ctx context.Context) error {
	if d == nil || d.cache == nil {
		return nil
	}
	return d.cache.Delete(ctx, d.cacheKey)
}

func (d *APIDiscovery) fetchGroups(context.Context) ([]string, error) {
	list, err := d.client.ServerGroups()
	if err != nil {
		return nil, mapError(err, "", "")
	}
	groups := make([]string, 0, len(list.Groups))
	for _, group := range list.Groups {
		groups = append(groups, group.Name)
	}
	slices.Sort(groups)
	return slices.Compact(groups), nil
}
