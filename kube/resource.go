package kube

import (
	"time"

	"github.com/goliatone/go-workspaces/core"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ToResource projects an unstructured workspace document onto the fields
// the gateway interprets. A status block that is present but null counts as
// absent.
func ToResource(obj *unstructured.Unstructured, observedAt time.Time) core.Resource {
	if obj == nil {
		return core.Resource{}
	}
	id, _, _ := unstructured.NestedString(obj.Object, "status", "devworkspaceId")
	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	started, _, _ := unstructured.NestedBool(obj.Object, "spec", "started")
	status, found, _ := unstructured.NestedFieldNoCopy(obj.Object, "status")

	return core.Resource{
		Name:       obj.GetName(),
		Namespace:  obj.GetNamespace(),
		ID:         id,
		Phase:      phase,
		HasStatus:  found && status != nil,
		Deleting:   obj.GetDeletionTimestamp() != nil,
		Started:    started,
		Object:     obj.UnstructuredContent(),
		ObservedAt: observedAt,
	}
}

func toResources(list *unstructured.UnstructuredList, observedAt time.Time) []core.Resource {
	if list == nil {
		return nil
	}
	out := make([]core.Resource, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, ToResource(&list.Items[i], observedAt))
	}
	return out
}
