package workspaces

import (
	"fmt"

	workspacescommand "github.com/goliatone/go-workspaces/command"
	"github.com/goliatone/go-workspaces/core"
	workspacesquery "github.com/goliatone/go-workspaces/query"
)

type CommandQueryService interface {
	workspacescommand.WorkspaceMutator
	workspacescommand.WatchSubscriber
	workspacesquery.WorkspaceReader
	workspacesquery.TemplateReader
	workspacesquery.APIProber
	workspacesquery.WatchStateReader
}

type Commands struct {
	CreateWorkspace *workspacescommand.CreateWorkspaceCommand
	DeleteWorkspace *workspacescommand.DeleteWorkspaceCommand
	PatchWorkspace  *workspacescommand.PatchWorkspaceCommand
	ChangeStatus    *workspacescommand.ChangeStatusCommand
	Subscribe       *workspacescommand.SubscribeCommand
	Unsubscribe     *workspacescommand.UnsubscribeCommand
	// EnqueueJob is nil unless a job enqueuer was supplied.
	EnqueueJob *workspacescommand.EnqueueJobCommand
}

type Queries struct {
	ListWorkspaces *workspacesquery.ListWorkspacesQuery
	GetWorkspace   *workspacesquery.GetWorkspaceQuery
	ListTemplates  *workspacesquery.ListTemplatesQuery
	GetTemplate    *workspacesquery.GetTemplateQuery
	APIEnabled     *workspacesquery.APIEnabledQuery
	WatchState     *workspacesquery.WatchStateQuery
	ListActivity   *workspacesquery.ListActivityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader core.ActivityReader
	jobEnqueuer    core.JobEnqueuer
}

func WithActivityReader(reader core.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func WithJobEnqueuer(enqueuer core.JobEnqueuer) FacadeOption {
	return func(options *facadeOptions) {
		options.jobEnqueuer = enqueuer
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("workspaces: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateWorkspace: workspacescommand.NewCreateWorkspaceCommand(service),
		DeleteWorkspace: workspacescommand.NewDeleteWorkspaceCommand(service),
		PatchWorkspace:  workspacescommand.NewPatchWorkspaceCommand(service),
		ChangeStatus:    workspacescommand.NewChangeStatusCommand(service),
		Subscribe:       workspacescommand.NewSubscribeCommand(service),
		Unsubscribe:     workspacescommand.NewUnsubscribeCommand(service),
	}
	if cfg.jobEnqueuer != nil {
		facade.commands.EnqueueJob = workspacescommand.NewEnqueueJobCommand(cfg.jobEnqueuer)
	}
	facade.queries = Queries{
		ListWorkspaces: workspacesquery.NewListWorkspacesQuery(service),
		GetWorkspace:   workspacesquery.NewGetWorkspaceQuery(service),
		ListTemplates:  workspacesquery.NewListTemplatesQuery(service),
		GetTemplate:    workspacesquery.NewGetTemplateQuery(service),
		APIEnabled:     workspacesquery.NewAPIEnabledQuery(service),
		WatchState:     workspacesquery.NewWatchStateQuery(service),
		ListActivity:   workspacesquery.NewListActivityQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveActivityReader falls back to the gateway's activity recorder when
// that recorder can also read.
func resolveActivityReader(service CommandQueryService) core.ActivityReader {
	provider, ok := service.(interface {
		Dependencies() core.GatewayDependencies
	})
	if !ok {
		return nil
	}
	reader, ok := provider.Dependencies().ActivityRecorder.(core.ActivityReader)
	if !ok {
		return nil
	}
	return reader
}

var _ CommandQueryService = (*core.Gateway)(nil)
