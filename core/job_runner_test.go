package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubJobDelivery struct {
	msg    *JobExecutionMessage
	acked  bool
	nacked bool
	nack   JobNackOptions
}

func (d *stubJobDelivery) Message() *JobExecutionMessage { return d.msg }

func (d *stubJobDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubJobDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.nacked = true
	d.nack = opts
	return nil
}

type stubJobDequeuer struct {
	mu         sync.Mutex
	deliveries []*stubJobDelivery
	err        error
}

func (q *stubJobDequeuer) Dequeue(context.Context) (JobDelivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	if len(q.deliveries) == 0 {
		return nil, nil
	}
	next := q.deliveries[0]
	q.deliveries = q.deliveries[1:]
	return next, nil
}

type capturingJobHook struct {
	mu     sync.Mutex
	events []string
}

func (h *capturingJobHook) add(kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, kind)
}

func (h *capturingJobHook) OnStart(context.Context, JobWorkerEvent)   { h.add("start") }
func (h *capturingJobHook) OnSuccess(context.Context, JobWorkerEvent) { h.add("success") }
func (h *capturingJobHook) OnFailure(context.Context, JobWorkerEvent) { h.add("failure") }
func (h *capturingJobHook) OnRetry(context.Context, JobWorkerEvent)   { h.add("retry") }

func newTestJobRunner(t *testing.T, fx gatewayFixture, deliveries ...*stubJobDelivery) (*JobRunner, *capturingJobHook) {
	t.Helper()
	hook := &capturingJobHook{}
	runner, err := NewJobRunner(fx.gateway, &stubJobDequeuer{deliveries: deliveries}, hook, JobRunnerConfig{
		RetryDelay: time.Second,
		IdleDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new job runner: %v", err)
	}
	return runner, hook
}

func TestJobRunner_CreateJobAcksOnReady(t *testing.T) {
	fx := newGatewayFixture(t, Config{})
	fx.cluster.statusAfter = 1
	started := false
	delivery := &stubJobDelivery{msg: NewCreateWorkspaceJob("raw", CreateRequest{
		Namespace: "ns-a",
		Name:      "ws-1",
		Started:   &started,
		Devfile:   map[string]any{"schemaVersion": "2.2.0"},
	})}
	runner, hook := newTestJobRunner(t, fx, delivery)

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected delivery acked")
	}
	created := fx.cluster.created[0]
	if created.Started == nil || *created.Started {
		t.Fatalf("expected started=false to survive the job parameters")
	}
	if created.Devfile["schemaVersion"] != "2.2.0" {
		t.Fatalf("expected devfile forwarded, got %#v", created.Devfile)
	}
	if len(hook.events) != 2 || hook.events[0] != "start" || hook.events[1] != "success" {
		t.Fatalf("unexpected hook events %v", hook.events)
	}
}

func TestJobRunner_CreationTimeoutDeadLetters(t *testing.T) {
	fx := newGatewayFixture(t, Config{})
	delivery := &stubJobDelivery{msg: NewCreateWorkspaceJob("raw", CreateRequest{Namespace: "ns-a", Name: "ws-1"})}
	runner, hook := newTestJobRunner(t, fx, delivery)

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !delivery.nacked || delivery.nack.Requeue || !delivery.nack.DeadLetter {
		t.Fatalf("expected dead-lettered nack, got %+v", delivery.nack)
	}
	if hook.events[len(hook.events)-1] != "failure" {
		t.Fatalf("expected failure hook, got %v", hook.events)
	}
}

func TestJobRunner_ExchangeFailureRequeues(t *testing.T) {
	fx := newGatewayFixture(t, Config{})
	fx.cluster.resources["ns-a/ws-1"] = Resource{Name: "ws-1", Namespace: "ns-a"}
	fx.exchanger.failNext(errors.New("idp down"))
	delivery := &stubJobDelivery{msg: NewDeleteWorkspaceJob("raw", "ns-a", "ws-1")}
	runner, hook := newTestJobRunner(t, fx, delivery)

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !delivery.nacked || !delivery.nack.Requeue || delivery.nack.Delay != time.Second {
		t.Fatalf("expected requeue with retry delay, got %+v", delivery.nack)
	}
	if hook.events[len(hook.events)-1] != "retry" {
		t.Fatalf("expected retry hook, got %v", hook.events)
	}
}

func TestJobRunner_ExecuteChangeStatus(t *testing.T) {
	fx := newGatewayFixture(t, Config{})
	fx.cluster.resources["ns-a/ws-1"] = Resource{Name: "ws-1", Namespace: "ns-a", Started: true}
	runner, _ := newTestJobRunner(t, fx)

	if err := runner.Execute(context.Background(), NewChangeStatusJob("raw", "ns-a", "ws-1", false)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if fx.cluster.resources["ns-a/ws-1"].Started {
		t.Fatalf("expected workspace stopped")
	}
}

func TestJobRunner_ExecuteRejectsUnknownJob(t *testing.T) {
	fx := newGatewayFixture(t, Config{})
	runner, _ := newTestJobRunner(t, fx)
	err := runner.Execute(context.Background(), &JobExecutionMessage{JobID: "workspaces.unknown"})
	if err == nil || isRetryableJobError(err) {
		t.Fatalf("expected final bad input error, got %v", err)
	}
}

func TestJobRunner_RunStopsOnCancel(t *testing.T) {
	fx := newGatewayFixture(t, Config{})
	runner, _ := newTestJobRunner(t, fx)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := runner.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewJobRunner_RequiresDependencies(t *testing.T) {
	if _, err := NewJobRunner(nil, &stubJobDequeuer{}, nil, JobRunnerConfig{}); err == nil {
		t.Fatalf("expected error without gateway")
	}
	fx := newGatewayFixture(t, Config{})
	if _, err := NewJobRunner(fx.gateway, nil, nil, JobRunnerConfig{}); err == nil {
		t.Fatalf("expected error without dequeuer")
	}
}
