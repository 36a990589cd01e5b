package kube

import (
	"maps"
	"strings"

	"github.com/goliatone/go-workspaces/core"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	KindDevWorkspace         = "DevWorkspace"
	KindDevWorkspaceTemplate = "DevWorkspaceTemplate"
	DevfileSchemaVersion     = "2.1.0"

	// AttributeMetadataAnnotations carries annotations a devfile wants copied
	// onto the generated workspace.
	AttributeMetadataAnnotations = "dw.metadata.annotations"
)

var templateSections = []string{"projects", "components", "commands", "events"}

// DevfileToDevWorkspace builds the workspace document for devfile. Only the
// template sections present in the devfile are copied.
func DevfileToDevWorkspace(devfile map[string]any, apiVersion, routingClass string, started bool) *unstructured.Unstructured {
	metadata, _ := devfile["metadata"].(map[string]any)
	name, _ := metadata["name"].(string)

	annotations := map[string]any{}
	if attributes, ok := metadata["attributes"].(map[string]any); ok {
		if values, ok := attributes[AttributeMetadataAnnotations].(map[string]any); ok {
			maps.Copy(annotations, values)
		}
	}

	template := map[string]any{}
	for _, section := range templateSections {
		if value, ok := devfile[section]; ok && value != nil {
			template[section] = value
		}
	}

	spec := map[string]any{
		"started":  started,
		"template": template,
	}
	if strings.TrimSpace(routingClass) != "" {
		spec["routingClass"] = routingClass
	}

	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": apiVersion,
		"kind":       KindDevWorkspace,
		"metadata": map[string]any{
			"name":        name,
			"annotations": annotations,
		},
		"spec": spec,
	}}
}

// DevWorkspaceToDevfile recovers a devfile from a workspace document.
// Plugin components are injected by the operator and are dropped.
func DevWorkspaceToDevfile(workspace map[string]any) map[string]any {
	name, _, _ := unstructured.NestedString(workspace, "metadata", "name")
	devfile := map[string]any{
		"schemaVersion": DevfileSchemaVersion,
		"metadata":      map[string]any{"name": name},
	}
	raw, _, _ := unstructured.NestedFieldNoCopy(workspace, "spec", "template")
	template, ok := raw.(map[string]any)
	if !ok {
		return devfile
	}
	for _, section := range templateSections {
		value, ok := template[section]
		if !ok || value == nil {
			continue
		}
		if section == "components" {
			value = withoutPlugins(value)
		}
		devfile[section] = value
	}
	return devfile
}

func withoutPlugins(value any) any {
	components, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]any, 0, len(components))
	for _, component := range components {
		if entry, ok := component.(map[string]any); ok {
			if _, plugin := entry["plugin"]; plugin {
				continue
			}
		}
		out = append(out, component)
	}
	return out
}

// devfileName resolves the workspace name for a create request.
func devfileName(req core.CreateRequest) string {
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	name, _, _ := unstructured.NestedString(req.Devfile, "metadata", "name")
	return strings.TrimSpace(name)
}
