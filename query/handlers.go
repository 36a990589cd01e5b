package query

import (
	"context"

	"github.com/goliatone/go-workspaces/core"
)

type WorkspaceReader interface {
	List(ctx context.Context, credential string, namespace string) ([]core.Resource, error)
	Get(ctx context.Context, credential string, namespace, name string) (core.Resource, error)
}

type TemplateReader interface {
	ListTemplates(ctx context.Context, credential string, namespace string) ([]core.Resource, error)
	GetTemplate(ctx context.Context, credential string, namespace, name string) (core.Resource, error)
}

type APIProber interface {
	APIEnabled(ctx context.Context, credential string) (bool, error)
}

type WatchStateReader interface {
	State(namespace string) core.WatchState
}

type ListWorkspacesQuery struct {
	reader WorkspaceReader
}

func NewListWorkspacesQuery(reader WorkspaceReader) *ListWorkspacesQuery {
	return &ListWorkspacesQuery{reader: reader}
}

func (q *ListWorkspacesQuery) Query(ctx context.Context, msg ListWorkspacesMessage) ([]core.Resource, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: workspace reader is required")
	}
	return q.reader.List(ctx, msg.Credential, msg.Namespace)
}

type GetWorkspaceQuery struct {
	reader WorkspaceReader
}

func NewGetWorkspaceQuery(reader WorkspaceReader) *GetWorkspaceQuery {
	return &GetWorkspaceQuery{reader: reader}
}

func (q *GetWorkspaceQuery) Query(ctx context.Context, msg GetWorkspaceMessage) (core.Resource, error) {
	if q == nil || q.reader == nil {
		return core.Resource{}, queryDependencyError("query: workspace reader is required")
	}
	return q.reader.Get(ctx, msg.Credential, msg.Namespace, msg.Name)
}

type ListTemplatesQuery struct {
	reader TemplateReader
}

func NewListTemplatesQuery(reader TemplateReader) *ListTemplatesQuery {
	return &ListTemplatesQuery{reader: reader}
}

func (q *ListTemplatesQuery) Query(ctx context.Context, msg ListTemplatesMessage) ([]core.Resource, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: template reader is required")
	}
	return q.reader.ListTemplates(ctx, msg.Credential, msg.Namespace)
}

type GetTemplateQuery struct {
	reader TemplateReader
}

func NewGetTemplateQuery(reader TemplateReader) *GetTemplateQuery {
	return &GetTemplateQuery{reader: reader}
}

func (q *GetTemplateQuery) Query(ctx context.Context, msg GetTemplateMessage) (core.Resource, error) {
	if q == nil || q.reader == nil {
		return core.Resource{}, queryDependencyError("query: template reader is required")
	}
	return q.reader.GetTemplate(ctx, msg.Credential, msg.Namespace, msg.Name)
}

type APIEnabledQuery struct {
	prober APIProber
}

func NewAPIEnabledQuery(prober APIProber) *APIEnabledQuery {
	return &APIEnabledQuery{prober: prober}
}

func (q *APIEnabledQuery) Query(ctx context.Context, msg APIEnabledMessage) (bool, error) {
	if q == nil || q.prober == nil {
		return false, queryDependencyError("query: api prober is required")
	}
	return q.prober.APIEnabled(ctx, msg.Credential)
}

type WatchStateQuery struct {
	reader WatchStateReader
}

func NewWatchStateQuery(reader WatchStateReader) *WatchStateQuery {
	return &WatchStateQuery{reader: reader}
}

func (q *WatchStateQuery) Query(_ context.Context, msg WatchStateMessage) (core.WatchState, error) {
	if q == nil || q.reader == nil {
		return core.WatchStateUnwatched, queryDependencyError("query: watch state reader is required")
	}
	return q.reader.State(msg.Namespace), nil
}

type ListActivityQuery struct {
	reader core.ActivityReader
}

func NewListActivityQuery(reader core.ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, queryDependencyError("query: activity reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
