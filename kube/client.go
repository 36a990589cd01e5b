package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-workspaces/core"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
)

// Client is a workspace client bound to one exchanged token.
type Client struct {
	dynamic      dynamic.Interface
	gvr          schema.GroupVersionResource
	routingClass string
	discovery    *APIDiscovery
	templates    *TemplateClient
	now          func() time.Time
}

// NewClient wraps an authenticated dynamic client. apiDiscovery may be nil,
// in which case namespace initialization and API probing are skipped.
func NewClient(client dynamic.Interface, apiDiscovery *APIDiscovery, cfg core.KubernetesConfig) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("kube: dynamic client is required")
	}
	group := firstNonEmpty(cfg.APIGroup, core.DefaultAPIGroup)
	version := firstNonEmpty(cfg.APIVersion, core.DefaultAPIVersion)
	return &Client{
		dynamic:      client,
		gvr:          schema.GroupVersionResource{Group: group, Version: version, Resource: firstNonEmpty(cfg.Resource, core.DefaultResource)},
		routingClass: strings.TrimSpace(cfg.RoutingClass),
		discovery:    apiDiscovery,
		templates:    NewTemplateClient(client, group, version),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *Client) Templates() *TemplateClient {
	return c.templates
}

func (c *Client) List(ctx context.Context, namespace string) ([]core.Resource, error) {
	list, err := c.dynamic.Resource(c.gvr).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, mapError(err, namespace, "")
	}
	return toResources(list, c.now()), nil
}

func (c *Client) Get(ctx context.Context, namespace, name string) (core.Resource, error) {
	obj, err := c.dynamic.Resource(c.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return core.Resource{}, mapError(err, namespace, name)
	}
	return ToResource(obj, c.now()), nil
}

// Create converts the request devfile into a workspace document. The
// request name wins over metadata.name in the devfile.
func (c *Client) Create(ctx context.Context, req core.CreateRequest) (core.Resource, error) {
	namespace := strings.TrimSpace(req.Namespace)
	if namespace == "" {
		return core.Resource{}, core.NewBadInput("kube: namespace is required")
	}
	name := devfileName(req)
	if name == "" {
		return core.Resource{}, core.NewBadInput("kube: workspace name is required")
	}
	started := true
	if req.Started != nil {
		started = *req.Started
	}

	obj := DevfileToDevWorkspace(req.Devfile, c.gvr.GroupVersion().String(), firstNonEmpty(req.RoutingClass, c.routingClass), started)
	obj.SetName(name)
	obj.SetNamespace(namespace)

	created, err := c.dynamic.Resource(c.gvr).Namespace(namespace).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil {
		return core.Resource{}, mapError(err, namespace, name)
	}
	return ToResource(created, c.now()), nil
}

func (c *Client) Delete(ctx context.Context, namespace, name string) error {
	err := c.dynamic.Resource(c.gvr).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return mapError(err, namespace, name)
}

// Patch applies ops as an RFC 6902 JSON patch.
func (c *Client) Patch(ctx context.Context, namespace, name string, ops []core.PatchOperation) (core.Resource, error) {
	payload, err := json.Marshal(ops)
	if err != nil {
		return core.Resource{}, core.NewBadInput(fmt.Sprintf("kube: encode patch: %v", err))
	}
	patched, err := c.dynamic.Resource(c.gvr).Namespace(namespace).Patch(ctx, name, types.JSONPatchType, payload, metav1.PatchOptions{})
	if err != nil {
		return core.Resource{}, mapError(err, namespace, name)
	}
	return ToResource(patched, c.now()), nil
}

// serverOwnedMetadata is dropped from documents passed to Update.
var serverOwnedMetadata = []string{"uid", "creationTimestamp", "deletionTimestamp"}

// Update replaces the whole workspace document. document may be an object
// read back from the cluster; server-owned metadata is removed and the
// target name and namespace always win.
func (c *Client) Update(ctx context.Context, namespace, name string, document map[string]any) (core.Resource, error) {
	namespace = strings.TrimSpace(namespace)
	name = strings.TrimSpace(name)
	if namespace == "" || name == "" {
		return core.Resource{}, core.NewBadInput("kube: namespace and workspace name are required")
	}
	if len(document) == 0 {
		return core.Resource{}, core.NewBadInput("kube: workspace document is required")
	}

	obj := &unstructured.Unstructured{Object: maps.Clone(document)}
	if metadata, ok := document["metadata"].(map[string]any); ok {
		obj.Object["metadata"] = maps.Clone(metadata)
	}
	for _, field := range serverOwnedMetadata {
		unstructured.RemoveNestedField(obj.Object, "metadata", field)
	}
	obj.SetName(name)
	obj.SetNamespace(namespace)
	if obj.GetAPIVersion() == "" {
		obj.SetAPIVersion(c.gvr.GroupVersion().String())
	}
	if obj.GetKind() == "" {
		obj.SetKind(KindDevWorkspace)
	}

	updated, err := c.dynamic.Resource(c.gvr).Namespace(namespace).Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return core.Resource{}, mapError(err, namespace, name)
	}
	return ToResource(updated, c.now()), nil
}

func (c *Client) Watch(ctx context.Context, namespace string) (core.Watcher, error) {
	upstream, err := c.dynamic.Resource(c.gvr).Namespace(namespace).Watch(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, mapError(err, namespace, "")
	}
	return newWatcher(upstream, namespace, c.now), nil
}

func (c *Client) IsAPIEnabled(ctx context.Context) (bool, error) {
	if c.discovery == nil {
		return true, nil
	}
	return c.discovery.IsAPIEnabled(ctx)
}

func (c *Client) ListTemplates(ctx context.Context, namespace string) ([]core.Resource, error) {
	return c.templates.List(ctx, namespace)
}

func (c *Client) GetTemplate(ctx context.Context, namespace, name string) (core.Resource, error) {
	return c.templates.Get(ctx, namespace, name)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var (
	_ core.ResourceClient  = (*Client)(nil)
	_ core.APIProbe        = (*Client)(nil)
	_ core.TemplateSource  = (*Client)(nil)
	_ core.ResourceUpdater = (*Client)(nil)
)
