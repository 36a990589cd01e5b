package adapters_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	workspaces "github.com/goliatone/go-workspaces"
	"github.com/goliatone/go-workspaces/adapters/gocommand"
	"github.com/goliatone/go-workspaces/adapters/gojob"
	"github.com/goliatone/go-workspaces/adapters/gologger"
	workspacescommand "github.com/goliatone/go-workspaces/command"
	"github.com/goliatone/go-workspaces/core"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("workspaces", &compatProvider{logger: compatLogger{}}, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	queueProbe := &compatEnqueuer{}
	facade, err := workspaces.NewFacade(&compatService{}, workspaces.WithJobEnqueuer(gojob.NewEnqueuerAdapter(queueProbe)))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := gocommand.RegisterFacade(commandAdapter, facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer subs.Unsubscribe()
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	queueAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := queueAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := queueAdapter.RegisterCommand(facade.Commands().DeleteWorkspace); err != nil {
		t.Fatalf("register delete command: %v", err)
	}
	if err := queueAdapter.Initialize(); err != nil {
		t.Fatalf("initialize queue registry: %v", err)
	}
	if _, ok := queueRegistry.Get(workspacescommand.TypeDeleteWorkspace); !ok {
		t.Fatalf("expected workspace commands to be mirrored into go-job queue registry")
	}

	if err := gocommand.Dispatch(ctx, workspacescommand.EnqueueJobMessage{
		Job: core.NewCreateWorkspaceJob("token", core.CreateRequest{
			Namespace: "ns-a",
			Name:      "ws-1",
			Devfile:   map[string]any{"schemaVersion": "2.1.0"},
		}),
	}); err != nil {
		t.Fatalf("dispatch enqueue: %v", err)
	}
	if queueProbe.last == nil || queueProbe.last.JobID != gojob.JobIDCreateWorkspace {
		t.Fatalf("expected go-job message mapping through the dispatched enqueue command")
	}
	if queueProbe.last.IdempotencyKey != "create:ns-a/ws-1" {
		t.Fatalf("unexpected idempotency key %q", queueProbe.last.IdempotencyKey)
	}
}

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.last = msg
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }

type compatService struct{}

func (compatService) CreateAndWait(_ context.Context, _ string, req core.CreateRequest) (core.Resource, error) {
	return core.Resource{Name: req.Name, Namespace: req.Namespace}, nil
}

func (compatService) Delete(context.Context, string, string, string) error { return nil }

func (compatService) Patch(_ context.Context, _ string, namespace, name string, _ []core.PatchOperation) (core.Resource, error) {
	return core.Resource{Name: name, Namespace: namespace}, nil
}

func (compatService) ChangeStatus(_ context.Context, _ string, namespace, name string, started bool) (core.Resource, error) {
	return core.Resource{Name: name, Namespace: namespace, Started: started}, nil
}

func (compatService) Subscribe(context.Context, string, core.Sink, string) error { return nil }

func (compatService) Unsubscribe(context.Context, string, string) error { return nil }

func (compatService) List(context.Context, string, string) ([]core.Resource, error) { return nil, nil }

func (compatService) Get(_ context.Context, _ string, namespace, name string) (core.Resource, error) {
	return core.Resource{Name: name, Namespace: namespace}, nil
}

func (compatService) ListTemplates(context.Context, string, string) ([]core.Resource, error) {
	return nil, nil
}

func (compatService) GetTemplate(_ context.Context, _ string, namespace, name string) (core.Resource, error) {
	return core.Resource{Name: name, Namespace: namespace}, nil
}

func (compatService) APIEnabled(context.Context, string) (bool, error) { return true, nil }

func (compatService) State(string) core.WatchState { return core.WatchStateUnwatched }
