package query

import (
	"strings"

	"github.com/goliatone/go-workspaces/core"
)

const (
	TypeListWorkspaces = "workspaces.query.workspace.list"
	TypeGetWorkspace   = "workspaces.query.workspace.get"
	TypeListTemplates  = "workspaces.query.template.list"
	TypeGetTemplate    = "workspaces.query.template.get"
	TypeAPIEnabled     = "workspaces.query.api.enabled"
	TypeWatchState     = "workspaces.query.watch.state"
	TypeListActivity   = "workspaces.query.activity.list"
)

type ListWorkspacesMessage struct {
	Credential string
	Namespace  string
}

func (ListWorkspacesMessage) Type() string { return TypeListWorkspaces }

func (m ListWorkspacesMessage) Validate() error {
	if err := requireCredential(m.Credential); err != nil {
		return err
	}
	if strings.TrimSpace(m.Namespace) == "" {
		return queryValidationError("namespace", "namespace is required")
	}
	return nil
}

type GetWorkspaceMessage struct {
	Credential string
	Namespace  string
	Name       string
}

func (GetWorkspaceMessage) Type() string { return TypeGetWorkspace }

func (m GetWorkspaceMessage) Validate() error {
	if err := requireCredential(m.Credential); err != nil {
		return err
	}
	return requireNamespacedName(m.Namespace, m.Name)
}

type ListTemplatesMessage struct {
	Credential string
	Namespace  string
}

func (ListTemplatesMessage) Type() string { return TypeListTemplates }

func (m ListTemplatesMessage) Validate() error {
	if err := requireCredential(m.Credential); err != nil {
		return err
	}
	if strings.TrimSpace(m.Namespace) == "" {
		return queryValidationError("namespace", "namespace is required")
	}
	return nil
}

type GetTemplateMessage struct {
	Credential string
	Namespace  string
	Name       string
}

func (GetTemplateMessage) Type() string { return TypeGetTemplate }

func (m GetTemplateMessage) Validate() error {
	if err := requireCredential(m.Credential); err != nil {
		return err
	}
	return requireNamespacedName(m.Namespace, m.Name)
}

type APIEnabledMessage struct {
	Credential string
}

func (APIEnabledMessage) Type() string { return TypeAPIEnabled }

func (m APIEnabledMessage) Validate() error {
	return requireCredential(m.Credential)
}

type WatchStateMessage struct {
	Namespace string
}

func (WatchStateMessage) Type() string { return TypeWatchState }

func (m WatchStateMessage) Validate() error {
	if strings.TrimSpace(m.Namespace) == "" {
		return queryValidationError("namespace", "namespace is required")
	}
	return nil
}

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryInvalidInputError("query: activity window ends before it starts")
	}
	return nil
}

func requireCredential(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return queryValidationError("credential", "credential is required")
	}
	return nil
}

func requireNamespacedName(namespace, name string) error {
	if strings.TrimSpace(namespace) == "" {
		return queryValidationError("namespace", "namespace is required")
	}
	if strings.TrimSpace(name) == "" {
		return queryValidationError("name", "name is required")
	}
	return nil
}
