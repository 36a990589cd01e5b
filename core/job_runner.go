package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	JobIDCreateWorkspace = "workspaces.create"
	JobIDDeleteWorkspace = "workspaces.delete"
	JobIDChangeStatus    = "workspaces.change_status"
)

type JobRunnerConfig struct {
	RetryDelay time.Duration
	IdleDelay  time.Duration
}

func DefaultJobRunnerConfig() JobRunnerConfig {
	return JobRunnerConfig{
		RetryDelay: 5 * time.Second,
		IdleDelay:  time.Second,
	}
}

// JobRunner executes queued workspace mutations against the gateway so that
// callers can fire a create without holding a connection open for the wait.
type JobRunner struct {
	gateway   *Gateway
	dequeuer  JobDequeuer
	hook      JobWorkerHook
	config    JobRunnerConfig
	telemetry telemetry
}

func NewJobRunner(gateway *Gateway, dequeuer JobDequeuer, hook JobWorkerHook, config JobRunnerConfig) (*JobRunner, error) {
	if gateway == nil {
		return nil, fmt.Errorf("core: gateway is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("core: job dequeuer is required")
	}
	defaults := DefaultJobRunnerConfig()
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.IdleDelay <= 0 {
		config.IdleDelay = defaults.IdleDelay
	}
	return &JobRunner{
		gateway:   gateway,
		dequeuer:  dequeuer,
		hook:      hook,
		config:    config,
		telemetry: gateway.telemetry,
	}, nil
}

func NewCreateWorkspaceJob(credential string, req CreateRequest) *JobExecutionMessage {
	params := map[string]any{
		"credential":    credential,
		"namespace":     req.Namespace,
		"name":          req.Name,
		"routing_class": req.RoutingClass,
		"devfile":       req.Devfile,
	}
	if req.Started != nil {
		params["started"] = *req.Started
	}
	return &JobExecutionMessage{
		JobID:          JobIDCreateWorkspace,
		ScriptPath:     JobIDCreateWorkspace,
		Parameters:     params,
		IdempotencyKey: "create:" + req.Namespace + "/" + req.Name,
		DedupPolicy:    "drop",
	}
}

func NewDeleteWorkspaceJob(credential, namespace, name string) *JobExecutionMessage {
	return &JobExecutionMessage{
		JobID:      JobIDDeleteWorkspace,
		ScriptPath: JobIDDeleteWorkspace,
		Parameters: map[string]any{
			"credential": credential,
			"namespace":  namespace,
			"name":       name,
		},
		IdempotencyKey: "delete:" + namespace + "/" + name,
		DedupPolicy:    "drop",
	}
}

func NewChangeStatusJob(credential, namespace, name string, started bool) *JobExecutionMessage {
	return &JobExecutionMessage{
		JobID:      JobIDChangeStatus,
		ScriptPath: JobIDChangeStatus,
		Parameters: map[string]any{
			"credential": credential,
			"namespace":  namespace,
			"name":       name,
			"started":    started,
		},
	}
}

// Run processes deliveries until ctx is cancelled.
func (r *JobRunner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := r.runOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.telemetry.logWarn(ctx, "job delivery failed", map[string]any{"error": err.Error()})
		}
		if err != nil || !processed {
			if waitErr := waitWithContext(ctx, r.config.IdleDelay); waitErr != nil {
				return waitErr
			}
		}
	}
}

// RunOnce dequeues and executes a single delivery, acking on success and
// nacking with a retry or dead-letter decision on failure.
func (r *JobRunner) RunOnce(ctx context.Context) error {
	_, err := r.runOnce(ctx)
	return err
}

func (r *JobRunner) runOnce(ctx context.Context) (bool, error) {
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	msg := delivery.Message()
	event := JobWorkerEvent{Message: msg, Attempt: 1, StartedAt: time.Now().UTC()}
	r.onStart(ctx, event)

	execErr := r.Execute(ctx, msg)
	event.Duration = time.Since(event.StartedAt)
	if execErr == nil {
		r.onSuccess(ctx, event)
		return true, delivery.Ack(ctx)
	}

	event.Err = execErr
	nack := JobNackOptions{
		Delay:   r.config.RetryDelay,
		Requeue: true,
		Reason:  execErr.Error(),
	}
	if !isRetryableJobError(execErr) {
		nack.Requeue = false
		nack.DeadLetter = true
		r.onFailure(ctx, event)
	} else {
		event.Delay = nack.Delay
		r.onRetry(ctx, event)
	}
	if err := delivery.Nack(ctx, nack); err != nil {
		return true, errors.Join(execErr, err)
	}
	return true, nil
}

func (r *JobRunner) Execute(ctx context.Context, msg *JobExecutionMessage) error {
	if msg == nil {
		return NewBadInput("core: job message is required")
	}
	params := msg.Parameters
	credential := paramString(params, "credential")
	namespace := paramString(params, "namespace")
	name := paramString(params, "name")

	switch strings.TrimSpace(msg.JobID) {
	case JobIDCreateWorkspace:
		req := CreateRequest{
			Namespace:    namespace,
			Name:         name,
			RoutingClass: paramString(params, "routing_class"),
		}
		if devfile, ok := params["devfile"].(map[string]any); ok {
			req.Devfile = devfile
		}
		if started, ok := params["started"].(bool); ok {
			req.Started = &started
		}
		_, err := r.gateway.CreateAndWait(ctx, credential, req)
		return err
	case JobIDDeleteWorkspace:
		return r.gateway.Delete(ctx, credential, namespace, name)
	case JobIDChangeStatus:
		started, ok := params["started"].(bool)
		if !ok {
			return NewBadInput("core: started flag is required")
		}
		_, err := r.gateway.ChangeStatus(ctx, credential, namespace, name, started)
		return err
	default:
		return NewBadInput(fmt.Sprintf("core: unknown job %q", msg.JobID))
	}
}

func (r *JobRunner) onStart(ctx context.Context, event JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnStart(ctx, event)
	}
}

func (r *JobRunner) onSuccess(ctx context.Context, event JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnSuccess(ctx, event)
	}
}

func (r *JobRunner) onFailure(ctx context.Context, event JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnFailure(ctx, event)
	}
}

func (r *JobRunner) onRetry(ctx context.Context, event JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnRetry(ctx, event)
	}
}

// Creation timeouts, conflicts and bad input are final.
func isRetryableJobError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryConflict, goerrors.CategoryNotFound:
			return false
		}
		if strings.EqualFold(richErr.TextCode, WorkspaceErrorCreationTimeout) {
			return false
		}
	}
	return true
}

func paramString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		text = fmt.Sprint(value)
	}
	return strings.TrimSpace(text)
}
