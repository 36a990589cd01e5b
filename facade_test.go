package workspaces

import (
	"context"
	"testing"

	workspacescommand "github.com/goliatone/go-workspaces/command"
	"github.com/goliatone/go-workspaces/core"
	workspacesquery "github.com/goliatone/go-workspaces/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{}, WithActivityReader(&stubFacadeActivityReader{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.CreateWorkspace == nil || commands.ChangeStatus == nil || commands.Subscribe == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	if commands.EnqueueJob != nil {
		t.Fatalf("expected enqueue command to stay nil without an enqueuer")
	}
	queries := facade.Queries()
	if queries.ListWorkspaces == nil || queries.ListActivity == nil || queries.WatchState == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	enqueuer := &stubFacadeEnqueuer{}
	facade, err := NewFacade(svc, WithActivityReader(&stubFacadeActivityReader{}), WithJobEnqueuer(enqueuer))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().DeleteWorkspace.Execute(context.Background(), workspacescommand.DeleteWorkspaceMessage{
		Credential: "token",
		Namespace:  "ns-a",
		Name:       "ws-1",
	}); err != nil {
		t.Fatalf("execute delete command: %v", err)
	}
	if svc.lastDeleted != "ns-a/ws-1" {
		t.Fatalf("unexpected delete delegation payload %q", svc.lastDeleted)
	}

	if err := facade.Commands().EnqueueJob.Execute(context.Background(), workspacescommand.EnqueueJobMessage{
		Job: core.NewChangeStatusJob("token", "ns-a", "ws-1", false),
	}); err != nil {
		t.Fatalf("execute enqueue command: %v", err)
	}
	if len(enqueuer.jobs) != 1 {
		t.Fatalf("expected job to be enqueued")
	}

	items, err := facade.Queries().ListWorkspaces.Query(context.Background(), workspacesquery.ListWorkspacesMessage{
		Credential: "token",
		Namespace:  "ns-a",
	})
	if err != nil {
		t.Fatalf("query list workspaces: %v", err)
	}
	if len(items) != 1 || items[0].Name != "ws-1" {
		t.Fatalf("unexpected workspaces %#v", items)
	}

	page, err := facade.Queries().ListActivity.Query(context.Background(), workspacesquery.ListActivityMessage{
		Filter: core.ActivityFilter{Namespace: "ns-a", Page: 1, PerPage: 20},
	})
	if err != nil {
		t.Fatalf("query list activity: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("unexpected activity page result: %#v", page)
	}
}

func TestNewFacade_ResolvesActivityReaderFromRecorder(t *testing.T) {
	svc := &stubFacadeReadingService{recorder: &stubRecordingReader{}}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	page, err := facade.Queries().ListActivity.Query(context.Background(), workspacesquery.ListActivityMessage{})
	if err != nil {
		t.Fatalf("query list activity: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected service reader to be used, got %#v", page)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastDeleted string
}

func (s *stubFacadeService) CreateAndWait(_ context.Context, _ string, req core.CreateRequest) (core.Resource, error) {
	return core.Resource{Name: req.Name, Namespace: req.Namespace}, nil
}

func (s *stubFacadeService) Delete(_ context.Context, _ string, namespace, name string) error {
	s.lastDeleted = namespace + "/" + name
	return nil
}

func (s *stubFacadeService) Patch(_ context.Context, _ string, namespace, name string, _ []core.PatchOperation) (core.Resource, error) {
	return core.Resource{Name: name, Namespace: namespace}, nil
}

func (s *stubFacadeService) ChangeStatus(_ context.Context, _ string, namespace, name string, started bool) (core.Resource, error) {
	return core.Resource{Name: name, Namespace: namespace, Started: started}, nil
}

func (s *stubFacadeService) Subscribe(context.Context, string, core.Sink, string) error {
	return nil
}

func (s *stubFacadeService) Unsubscribe(context.Context, string, string) error {
	return nil
}

func (s *stubFacadeService) List(_ context.Context, _ string, namespace string) ([]core.Resource, error) {
	return []core.Resource{{Name: "ws-1", Namespace: namespace}}, nil
}

func (s *stubFacadeService) Get(_ context.Context, _ string, namespace, name string) (core.Resource, error) {
	return core.Resource{Name: name, Namespace: namespace}, nil
}

func (s *stubFacadeService) ListTemplates(context.Context, string, string) ([]core.Resource, error) {
	return nil, nil
}

func (s *stubFacadeService) GetTemplate(_ context.Context, _ string, namespace, name string) (core.Resource, error) {
	return core.Resource{Name: name, Namespace: namespace}, nil
}

func (s *stubFacadeService) APIEnabled(context.Context, string) (bool, error) {
	return true, nil
}

func (s *stubFacadeService) State(string) core.WatchState {
	return core.WatchStateUnwatched
}

type stubFacadeReadingService struct {
	stubFacadeService
	recorder *stubRecordingReader
}

func (s *stubFacadeReadingService) Dependencies() core.GatewayDependencies {
	return core.GatewayDependencies{ActivityRecorder: s.recorder}
}

type stubRecordingReader struct{}

func (*stubRecordingReader) Record(context.Context, core.ActivityEntry) error {
	return nil
}

func (*stubRecordingReader) List(context.Context, core.ActivityFilter) (core.ActivityPage, error) {
	return core.ActivityPage{Total: 2}, nil
}

type stubFacadeActivityReader struct{}

func (stubFacadeActivityReader) List(context.Context, core.ActivityFilter) (core.ActivityPage, error) {
	return core.ActivityPage{Items: []core.ActivityEntry{{Action: core.ActivitySubscribed}}, Total: 1}, nil
}

type stubFacadeEnqueuer struct {
	jobs []*core.JobExecutionMessage
}

func (s *stubFacadeEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	s.jobs = append(s.jobs, msg)
	return nil
}
