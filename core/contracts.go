package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Resource is the subset of a workspace document the gateway interprets.
// Object carries the full upstream payload for passthrough callers.
type Resource struct {
	Name       string
	Namespace  string
	ID         string
	Phase      string
	HasStatus  bool
	Deleting   bool
	Started    bool
	Object     map[string]any
	ObservedAt time.Time
}

// ResourceKey returns the upstream workspace id, or the resource name before
// one is assigned. StatusDiffTracker carries snapshots across that switch.
func (r Resource) ResourceKey() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Name
}

type CreateRequest struct {
	Namespace    string
	Name         string
	Devfile      map[string]any
	RoutingClass string
	Started      *bool
}

type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

type WatchEventType string

const (
	WatchEventAdded    WatchEventType = "ADDED"
	WatchEventModified WatchEventType = "MODIFIED"
	WatchEventDeleted  WatchEventType = "DELETED"
	WatchEventError    WatchEventType = "ERROR"
)

type WatchEvent struct {
	Type     WatchEventType
	Resource Resource
	Err      error
}

// Watcher is an open upstream stream for one namespace. Events is closed when
// the stream ends; Stop is safe to call more than once.
type Watcher interface {
	Events() <-chan WatchEvent
	Stop()
}

// ResourceClient is the passthrough CRUD surface bound to one access token.
type ResourceClient interface {
	List(ctx context.Context, namespace string) ([]Resource, error)
	Get(ctx context.Context, namespace, name string) (Resource, error)
	Create(ctx context.Context, req CreateRequest) (Resource, error)
	Delete(ctx context.Context, namespace, name string) error
	Patch(ctx context.Context, namespace, name string, ops []PatchOperation) (Resource, error)
	Watch(ctx context.Context, namespace string) (Watcher, error)
}

// NamespaceInitializer is implemented by clients that must prepare a
// namespace before the first workspace is created in it.
type NamespaceInitializer interface {
	InitializeNamespace(ctx context.Context, namespace string) error
}

// APIProbe reports whether the cluster serves the workspace API group.
type APIProbe interface {
	IsAPIEnabled(ctx context.Context) (bool, error)
}

// ResourceUpdater is implemented by clients that can replace a whole
// workspace document.
type ResourceUpdater interface {
	Update(ctx context.Context, namespace, name string, document map[string]any) (Resource, error)
}

type TemplateSource interface {
	ListTemplates(ctx context.Context, namespace string) ([]Resource, error)
	GetTemplate(ctx context.Context, namespace, name string) (Resource, error)
}

type ClientFactory interface {
	NewClient(token string) (ResourceClient, error)
}

type ExchangedToken struct {
	AccessToken string
	ExpiresIn   time.Duration
}

type TokenExchanger interface {
	Exchange(ctx context.Context, rawCredential string) (ExchangedToken, error)
}

type TransitionRecord struct {
	ResourceID string `json:"resourceId"`
	Status     string `json:"status"`
	PrevStatus string `json:"prevStatus"`
	Error      string `json:"error,omitempty"`
}

// Sink is a downstream delivery target registered against one group.
type Sink interface {
	ID() string
	Send(ctx context.Context, record TransitionRecord) error
}

type ActivityAction string

const (
	ActivitySubscribed     ActivityAction = "watch.subscribed"
	ActivityUnsubscribed   ActivityAction = "watch.unsubscribed"
	ActivityWatchOpened    ActivityAction = "watch.opened"
	ActivityWatchClosed    ActivityAction = "watch.closed"
	ActivityWatchFailed    ActivityAction = "watch.failed"
	ActivityLeaseRefreshed ActivityAction = "lease.refreshed"
	ActivityCreateReady    ActivityAction = "workspace.ready"
	ActivityCreateTimeout  ActivityAction = "workspace.creation_timeout"
)

type ActivityEntry struct {
	ID        string
	Action    ActivityAction
	Namespace string
	SinkID    string
	Resource  string
	Status    string
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}

type ActivityFilter struct {
	Namespace string
	Action    ActivityAction
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

type ActivityPage struct {
	Items   []ActivityEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

// ActivityRecorder receives lifecycle entries. Recording failures never
// affect the operation that produced the entry.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

type ActivityReader interface {
	List(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
