package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-workspaces/core"
)

var (
	_ gocmd.Commander[CreateWorkspaceMessage] = (*CreateWorkspaceCommand)(nil)
	_ gocmd.Commander[DeleteWorkspaceMessage] = (*DeleteWorkspaceCommand)(nil)
	_ gocmd.Commander[PatchWorkspaceMessage]  = (*PatchWorkspaceCommand)(nil)
	_ gocmd.Commander[ChangeStatusMessage]    = (*ChangeStatusCommand)(nil)
	_ gocmd.Commander[SubscribeMessage]       = (*SubscribeCommand)(nil)
	_ gocmd.Commander[UnsubscribeMessage]     = (*UnsubscribeCommand)(nil)
	_ gocmd.Commander[EnqueueJobMessage]      = (*EnqueueJobCommand)(nil)

	_ WorkspaceMutator = (*core.Gateway)(nil)
	_ WatchSubscriber  = (*core.Gateway)(nil)
)
