package kube

import (
	"context"
	"strings"

	"github.com/goliatone/go-workspaces/core"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	projectGVR        = schema.GroupVersionResource{Group: OpenShiftProjectGroup, Version: "v1", Resource: "projects"}
	projectRequestGVR = schema.GroupVersionResource{Group: OpenShiftProjectGroup, Version: "v1", Resource: "projectrequests"}
)

// InitializeNamespace makes sure the target namespace exists before a
// workspace is created. On OpenShift a missing project is requested through
// the ProjectRequest API; elsewhere the namespace must already exist.
func (c *Client) InitializeNamespace(ctx context.Context, namespace string) error {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return core.NewBadInput("kube: namespace is required")
	}
	if c.discovery == nil {
		return nil
	}
	openShift, err := c.discovery.IsOpenShift(ctx)
	if err != nil || !openShift {
		return err
	}

	_, err = c.dynamic.Resource(projectGVR).Get(ctx, namespace, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) && !apierrors.IsForbidden(err) {
		return mapError(err, namespace, "")
	}

	request := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": projectRequestGVR.GroupVersion().String(),
		"kind":       "ProjectRequest",
		"metadata":   map[string]any{"name": namespace},
	}}
	_, err = c.dynamic.Resource(projectRequestGVR).Create(ctx, request, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return mapError(err, namespace, "")
	}
	return nil
}

var _ core.NamespaceInitializer = (*Client)(nil)
