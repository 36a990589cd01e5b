package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-workspaces/core"
)

type WorkspaceMutator interface {
	CreateAndWait(ctx context.Context, credential string, req core.CreateRequest) (core.Resource, error)
	Delete(ctx context.Context, credential string, namespace, name string) error
	Patch(ctx context.Context, credential string, namespace, name string, ops []core.PatchOperation) (core.Resource, error)
	ChangeStatus(ctx context.Context, credential string, namespace, name string, started bool) (core.Resource, error)
}

type WatchSubscriber interface {
	Subscribe(ctx context.Context, namespace string, sink core.Sink, credential string) error
	Unsubscribe(ctx context.Context, namespace string, sinkID string) error
}

type CreateWorkspaceCommand struct {
	service WorkspaceMutator
}

func NewCreateWorkspaceCommand(service WorkspaceMutator) *CreateWorkspaceCommand {
	return &CreateWorkspaceCommand{service: service}
}

func (c *CreateWorkspaceCommand) Execute(ctx context.Context, msg CreateWorkspaceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: workspace service is required")
	}
	out, err := c.service.CreateAndWait(ctx, msg.Credential, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteWorkspaceCommand struct {
	service WorkspaceMutator
}

func NewDeleteWorkspaceCommand(service WorkspaceMutator) *DeleteWorkspaceCommand {
	return &DeleteWorkspaceCommand{service: service}
}

func (c *DeleteWorkspaceCommand) Execute(ctx context.Context, msg DeleteWorkspaceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: workspace service is required")
	}
	return c.service.Delete(ctx, msg.Credential, msg.Namespace, msg.Name)
}

type PatchWorkspaceCommand struct {
	service WorkspaceMutator
}

func NewPatchWorkspaceCommand(service WorkspaceMutator) *PatchWorkspaceCommand {
	return &PatchWorkspaceCommand{service: service}
}

func (c *PatchWorkspaceCommand) Execute(ctx context.Context, msg PatchWorkspaceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: workspace service is required")
	}
	out, err := c.service.Patch(ctx, msg.Credential, msg.Namespace, msg.Name, msg.Operations)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ChangeStatusCommand struct {
	service WorkspaceMutator
}

func NewChangeStatusCommand(service WorkspaceMutator) *ChangeStatusCommand {
	return &ChangeStatusCommand{service: service}
}

func (c *ChangeStatusCommand) Execute(ctx context.Context, msg ChangeStatusMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: workspace service is required")
	}
	out, err := c.service.ChangeStatus(ctx, msg.Credential, msg.Namespace, msg.Name, msg.Started)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubscribeCommand struct {
	subscriber WatchSubscriber
}

func NewSubscribeCommand(subscriber WatchSubscriber) *SubscribeCommand {
	return &SubscribeCommand{subscriber: subscriber}
}

func (c *SubscribeCommand) Execute(ctx context.Context, msg SubscribeMessage) error {
	if c == nil || c.subscriber == nil {
		return commandDependencyError("command: watch subscriber is required")
	}
	return c.subscriber.Subscribe(ctx, msg.Namespace, msg.Sink, msg.Credential)
}

type UnsubscribeCommand struct {
	subscriber WatchSubscriber
}

func NewUnsubscribeCommand(subscriber WatchSubscriber) *UnsubscribeCommand {
	return &UnsubscribeCommand{subscriber: subscriber}
}

func (c *UnsubscribeCommand) Execute(ctx context.Context, msg UnsubscribeMessage) error {
	if c == nil || c.subscriber == nil {
		return commandDependencyError("command: watch subscriber is required")
	}
	return c.subscriber.Unsubscribe(ctx, msg.Namespace, msg.SinkID)
}

type EnqueueJobCommand struct {
	enqueuer core.JobEnqueuer
}

func NewEnqueueJobCommand(enqueuer core.JobEnqueuer) *EnqueueJobCommand {
	return &EnqueueJobCommand{enqueuer: enqueuer}
}

func (c *EnqueueJobCommand) Execute(ctx context.Context, msg EnqueueJobMessage) error {
	if c == nil || c.enqueuer == nil {
		return commandDependencyError("command: job enqueuer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.enqueuer.Enqueue(ctx, msg.Job)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
