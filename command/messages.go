package command

import (
	"strings"

	"github.com/goliatone/go-workspaces/core"
)

const (
	TypeCreateWorkspace = "workspaces.command.workspace.create"
	TypeDeleteWorkspace = "workspaces.command.workspace.delete"
	TypePatchWorkspace  = "workspaces.command.workspace.patch"
	TypeChangeStatus    = "workspaces.command.workspace.change_status"
	TypeSubscribe       = "workspaces.command.watch.subscribe"
	TypeUnsubscribe     = "workspaces.command.watch.unsubscribe"
	TypeEnqueueJob      = "workspaces.command.job.enqueue"
)

type CreateWorkspaceMessage struct {
	Credential string
	Request    core.CreateRequest
}

func (CreateWorkspaceMessage) Type() string { return TypeCreateWorkspace }

func (m CreateWorkspaceMessage) Validate() error {
	if err := requireCredential(m.Credential); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.Namespace) == "" {
		return commandValidationError("namespace", "namespace is required")
	}
	if len(m.Request.Devfile) == 0 {
		return commandValidationError("devfile", "devfile is required")
	}
	return nil
}

type DeleteWorkspaceMessage struct {
	Credential string
	Namespace  string
	Name       string
}

func (DeleteWorkspaceMessage) Type() string { return TypeDeleteWorkspace }

func (m DeleteWorkspaceMessage) Validate() error {
	if err := requireCredential(m.Credential); err != nil {
		return err
	}
	return requireNamespacedName(m.Namespace, m.Name)
}

type PatchWorkspaceMessage struct {
	Credential string
	Namespace  string
	Name       string
	Operations []core.PatchOperation
}

func (PatchWorkspaceMessage) Type() string { return TypePatchWorkspace }

func (m PatchWorkspaceMessage) Validate() error {
	if err := requireCredential(m.Credential); err != nil {
		return err
	}
	if err := requireNamespacedName(m.Namespace, m.Name); err != nil {
		return err
	}
	if len(m.Operations) == 0 {
		return commandValidationError("operations", "at least one patch operation is required")
	}
	for _, op := range m.Operations {
		switch strings.TrimSpace(op.Op) {
		case "add", "remove", "replace", "move", "copy", "test":
		default:
			return commandInvalidInputError("command: unsupported patch op " + op.Op)
		}
		if strings.TrimSpace(op.Path) == "" {
			return commandValidationError("path", "patch path is required")
		}
	}
	return nil
}

type ChangeStatusMessage struct {
	Credential string
	Namespace  string
	Name       string
	Started    bool
}

func (ChangeStatusMessage) Type() string { return TypeChangeStatus }

func (m ChangeStatusMessage) Validate() error {
	if err := requireCredential(m.Credential); err != nil {
		return err
	}
	return requireNamespacedName(m.Namespace, m.Name)
}

type SubscribeMessage struct {
	Namespace  string
	Credential string
	Sink       core.Sink
}

func (SubscribeMessage) Type() string { return TypeSubscribe }

func (m SubscribeMessage) Validate() error {
	if strings.TrimSpace(m.Namespace) == "" {
		return commandValidationError("namespace", "namespace is required")
	}
	if m.Sink == nil || strings.TrimSpace(m.Sink.ID()) == "" {
		return commandValidationError("sink", "sink with an id is required")
	}
	return requireCredential(m.Credential)
}

type UnsubscribeMessage struct {
	Namespace string
	SinkID    string
}

func (UnsubscribeMessage) Type() string { return TypeUnsubscribe }

func (m UnsubscribeMessage) Validate() error {
	if strings.TrimSpace(m.Namespace) == "" {
		return commandValidationError("namespace", "namespace is required")
	}
	if strings.TrimSpace(m.SinkID) == "" {
		return commandValidationError("sink_id", "sink id is required")
	}
	return nil
}

// EnqueueJobMessage hands a workspace mutation to the background runner.
type EnqueueJobMessage struct {
	Job *core.JobExecutionMessage
}

func (EnqueueJobMessage) Type() string { return TypeEnqueueJob }

func (m EnqueueJobMessage) Validate() error {
	if m.Job == nil {
		return commandValidationError("job", "job message is required")
	}
	if strings.TrimSpace(m.Job.JobID) == "" {
		return commandValidationError("job_id", "job id is required")
	}
	return nil
}

func requireCredential(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return commandValidationError("credential", "credential is required")
	}
	return nil
}

func requireNamespacedName(namespace, name string) error {
	if strings.TrimSpace(namespace) == "" {
		return commandValidationError("namespace", "namespace is required")
	}
	if strings.TrimSpace(name) == "" {
		return commandValidationError("name", "name is required")
	}
	return nil
}
