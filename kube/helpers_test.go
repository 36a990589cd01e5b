package kube

import (
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-workspaces/core"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	fakediscovery "k8s.io/client-go/discovery/fake"
	fakedynamic "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"
)

var (
	workspaceGVR = schema.GroupVersionResource{Group: core.DefaultAPIGroup, Version: core.DefaultAPIVersion, Resource: core.DefaultResource}
	templateGVR  = schema.GroupVersionResource{Group: core.DefaultAPIGroup, Version: core.DefaultAPIVersion, Resource: DefaultTemplateResource}
)

func newFakeDynamic(objects ...runtime.Object) *fakedynamic.FakeDynamicClient {
	return fakedynamic.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), map[schema.GroupVersionResource]string{
		workspaceGVR: "DevWorkspaceList",
		templateGVR:  "DevWorkspaceTemplateList",
		projectGVR:   "ProjectList",
	}, objects...)
}

func newFakeDiscovery(groupVersions ...string) *fakediscovery.FakeDiscovery {
	fd := &fakediscovery.FakeDiscovery{Fake: &k8stesting.Fake{}}
	for _, gv := range groupVersions {
		fd.Resources = append(fd.Resources, &metav1.APIResourceList{GroupVersion: gv})
	}
	return fd
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func newTestClient(t *testing.T, dyn *fakedynamic.FakeDynamicClient, fd *fakediscovery.FakeDiscovery) *Client {
	t.Helper()
	var apiDiscovery *APIDiscovery
	if fd != nil {
		var err error
		apiDiscovery, err = NewAPIDiscovery(fd, newTestCacheService(t), core.DefaultAPIGroup, "https://cluster.test")
		if err != nil {
			t.Fatalf("new discovery: %v", err)
		}
	}
	client, err := NewClient(dyn, apiDiscovery, core.KubernetesConfig{RoutingClass: "che"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func workspaceObject(namespace, name string, status map[string]any) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": workspaceGVR.GroupVersion().String(),
		"kind":       KindDevWorkspace,
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]any{"started": false},
	}}
	if status != nil {
		obj.Object["status"] = status
	}
	return obj
}

func countActions(actions []k8stesting.Action, verb, resource string) int {
	count := 0
	for _, action := range actions {
		if action.GetVerb() == verb && action.GetResource().Resource == resource {
			count++
		}
	}
	return count
}
