package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-workspaces/core"
)

var (
	_ gocmd.Querier[ListWorkspacesMessage, []core.Resource] = (*ListWorkspacesQuery)(nil)
	_ gocmd.Querier[GetWorkspaceMessage, core.Resource]     = (*GetWorkspaceQuery)(nil)
	_ gocmd.Querier[ListTemplatesMessage, []core.Resource]  = (*ListTemplatesQuery)(nil)
	_ gocmd.Querier[GetTemplateMessage, core.Resource]      = (*GetTemplateQuery)(nil)
	_ gocmd.Querier[APIEnabledMessage, bool]                = (*APIEnabledQuery)(nil)
	_ gocmd.Querier[WatchStateMessage, core.WatchState]     = (*WatchStateQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage] = (*ListActivityQuery)(nil)

	_ WorkspaceReader  = (*core.Gateway)(nil)
	_ TemplateReader   = (*core.Gateway)(nil)
	_ APIProber        = (*core.Gateway)(nil)
	_ WatchStateReader = (*core.Gateway)(nil)
)
