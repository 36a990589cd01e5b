package kube

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-workspaces/core"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
)

const DefaultTemplateResource = "devworkspacetemplates"

// TemplateClient manages devworkspace templates alongside the workspaces
// that reference them.
type TemplateClient struct {
	dynamic dynamic.Interface
	gvr     schema.GroupVersionResource
	now     func() time.Time
}

func NewTemplateClient(client dynamic.Interface, group, version string) *TemplateClient {
	return &TemplateClient{
		dynamic: client,
		gvr:     schema.GroupVersionResource{Group: group, Version: version, Resource: DefaultTemplateResource},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *TemplateClient) List(ctx context.Context, namespace string) ([]core.Resource, error) {
	list, err := c.dynamic.Resource(c.gvr).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, mapError(err, namespace, "")
	}
	return toResources(list, c.now()), nil
}

func (c *TemplateClient) Get(ctx context.Context, namespace, name string) (core.Resource, error) {
	obj, err := c.dynamic.Resource(c.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return core.Resource{}, mapError(err, namespace, name)
	}
	return ToResource(obj, c.now()), nil
}

// Create stores template in the namespace named by its own metadata.
func (c *TemplateClient) Create(ctx context.Context, template map[string]any) (core.Resource, error) {
	obj := &unstructured.Unstructured{Object: template}
	namespace := strings.TrimSpace(obj.GetNamespace())
	if namespace == "" {
		return core.Resource{}, core.NewBadInput("kube: template metadata.namespace is required")
	}
	if strings.TrimSpace(obj.GetName()) == "" {
		return core.Resource{}, core.NewBadInput("kube: template metadata.name is required")
	}
	if obj.GetAPIVersion() == "" {
		obj.SetAPIVersion(c.gvr.GroupVersion().String())
	}
	if obj.GetKind() == "" {
		obj.SetKind(KindDevWorkspaceTemplate)
	}
	created, err := c.dynamic.Resource(c.gvr).Namespace(namespace).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil {
		return core.Resource{}, mapError(err, namespace, obj.GetName())
	}
	return ToResource(created, c.now()), nil
}

func (c *TemplateClient) Delete(ctx context.Context, namespace, name string) error {
	err := c.dynamic.Resource(c.gvr).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return mapError(err, namespace, name)
}
