package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const testWait = 2 * time.Second

type fakeWatcher struct {
	events   chan WatchEvent
	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events:  make(chan WatchEvent, 32),
		stopped: make(chan struct{}),
	}
}

func (w *fakeWatcher) Events() <-chan WatchEvent { return w.events }

func (w *fakeWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopped) })
}

func (w *fakeWatcher) isStopped() bool {
	select {
	case <-w.stopped:
		return true
	default:
		return false
	}
}

func (w *fakeWatcher) emit(eventType WatchEventType, id, phase string) {
	w.events <- WatchEvent{
		Type:     eventType,
		Resource: Resource{ID: id, Name: id, Phase: phase, HasStatus: phase != ""},
	}
}

// fakeCluster backs every fakeClient handed out by fakeClientFactory so tests
// can observe watches opened across lease refreshes.
type fakeCluster struct {
	mu             sync.Mutex
	watchers       map[string][]*fakeWatcher
	watchErrs      map[string][]error
	watchTokens    []string
	opened         chan string
	rejectedTokens map[string]bool
	resources      map[string]Resource
	getCalls       int
	statusAfter    int
	createErr      error
	created        []CreateRequest
	patches        [][]PatchOperation
	deleted        []string
	// watchGate, when set, holds Watch calls open until it is closed.
	watchGate    chan struct{}
	watchEntered chan struct{}
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		watchers:       make(map[string][]*fakeWatcher),
		watchErrs:      make(map[string][]error),
		opened:         make(chan string, 64),
		rejectedTokens: make(map[string]bool),
		resources:      make(map[string]Resource),
	}
}

func (c *fakeCluster) failNextWatch(namespace string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchErrs[namespace] = append(c.watchErrs[namespace], err)
}

func (c *fakeCluster) rejectToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectedTokens[token] = true
}

func (c *fakeCluster) watchCount(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watchers[namespace])
}

func (c *fakeCluster) watcher(t *testing.T, namespace string, index int) *fakeWatcher {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		items := c.watchers[namespace]
		if index < len(items) {
			w := items[index]
			c.mu.Unlock()
			return w
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("watch %d for namespace %q was never opened", index, namespace)
	return nil
}

func (c *fakeCluster) unauthorized(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectedTokens[token] {
		return goerrors.New("token rejected", goerrors.CategoryAuth).
			WithCode(401).
			WithTextCode(WorkspaceErrorUnauthorized)
	}
	return nil
}

type fakeClient struct {
	cluster *fakeCluster
	token   string
}

func (c *fakeClient) List(_ context.Context, namespace string) ([]Resource, error) {
	if err := c.cluster.unauthorized(c.token); err != nil {
		return nil, err
	}
	c.cluster.mu.Lock()
	defer c.cluster.mu.Unlock()
	out := []Resource{}
	for key, resource := range c.cluster.resources {
		if strings.HasPrefix(key, namespace+"/") {
			out = append(out, resource)
		}
	}
	return out, nil
}

func (c *fakeClient) Get(_ context.Context, namespace, name string) (Resource, error) {
	if err := c.cluster.unauthorized(c.token); err != nil {
		return Resource{}, err
	}
	c.cluster.mu.Lock()
	defer c.cluster.mu.Unlock()
	c.cluster.getCalls++
	resource, ok := c.cluster.resources[namespace+"/"+name]
	if !ok {
		return Resource{}, NewNotFound(namespace, name)
	}
	if c.cluster.statusAfter >= 0 && c.cluster.getCalls >= c.cluster.statusAfter {
		resource.HasStatus = true
		resource.Phase = "Starting"
	}
	return resource, nil
}

func (c *fakeClient) Create(_ context.Context, req CreateRequest) (Resource, error) {
	if err := c.cluster.unauthorized(c.token); err != nil {
		return Resource{}, err
	}
	c.cluster.mu.Lock()
	defer c.cluster.mu.Unlock()
	if c.cluster.createErr != nil {
		return Resource{}, c.cluster.createErr
	}
	key := req.Namespace + "/" + req.Name
	if _, exists := c.cluster.resources[key]; exists {
		return Resource{}, NewAlreadyExists(req.Namespace, req.Name)
	}
	c.cluster.created = append(c.cluster.created, req)
	resource := Resource{Name: req.Name, Namespace: req.Namespace}
	c.cluster.resources[key] = resource
	return resource, nil
}

func (c *fakeClient) Delete(_ context.Context, namespace, name string) error {
	if err := c.cluster.unauthorized(c.token); err != nil {
		return err
	}
	c.cluster.mu.Lock()
	defer c.cluster.mu.Unlock()
	key := namespace + "/" + name
	if _, ok := c.cluster.resources[key]; !ok {
		return NewNotFound(namespace, name)
	}
	delete(c.cluster.resources, key)
	c.cluster.deleted = append(c.cluster.deleted, key)
	return nil
}

func (c *fakeClient) Patch(_ context.Context, namespace, name string, ops []PatchOperation) (Resource, error) {
	if err := c.cluster.unauthorized(c.token); err != nil {
		return Resource{}, err
	}
	c.cluster.mu.Lock()
	defer c.cluster.mu.Unlock()
	resource, ok := c.cluster.resources[namespace+"/"+name]
	if !ok {
		return Resource{}, NewNotFound(namespace, name)
	}
	c.cluster.patches = append(c.cluster.patches, ops)
	for _, op := range ops {
		if op.Path == "/spec/started" {
			if started, ok := op.Value.(bool); ok {
				resource.Started = started
			}
		}
	}
	c.cluster.resources[namespace+"/"+name] = resource
	return resource, nil
}

func (c *fakeClient) Watch(ctx context.Context, namespace string) (Watcher, error) {
	if err := c.cluster.unauthorized(c.token); err != nil {
		return nil, err
	}
	if c.cluster.watchGate != nil {
		if c.cluster.watchEntered != nil {
			c.cluster.watchEntered <- struct{}{}
		}
		select {
		case <-c.cluster.watchGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.cluster.mu.Lock()
	if queued := c.cluster.watchErrs[namespace]; len(queued) > 0 {
		err := queued[0]
		c.cluster.watchErrs[namespace] = queued[1:]
		c.cluster.mu.Unlock()
		return nil, err
	}
	w := newFakeWatcher()
	c.cluster.watchers[namespace] = append(c.cluster.watchers[namespace], w)
	c.cluster.watchTokens = append(c.cluster.watchTokens, c.token)
	c.cluster.mu.Unlock()
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopped:
		}
	}()
	c.cluster.opened <- namespace
	return w, nil
}

type fakeClientFactory struct {
	cluster *fakeCluster
	err     error
}

func (f *fakeClientFactory) NewClient(token string) (ResourceClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeClient{cluster: f.cluster, token: token}, nil
}

// countingExchanger issues token-1, token-2, ... and can be gated so that
// concurrent callers pile up behind one exchange.
type countingExchanger struct {
	calls     atomic.Int32
	expiresIn time.Duration
	gate      chan struct{}
	entered   chan struct{}

	mu   sync.Mutex
	errs []error
}

func (e *countingExchanger) failNext(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *countingExchanger) Exchange(ctx context.Context, raw string) (ExchangedToken, error) {
	n := e.calls.Add(1)
	if e.entered != nil {
		select {
		case e.entered <- struct{}{}:
		default:
		}
	}
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return ExchangedToken{}, ctx.Err()
		}
	}
	e.mu.Lock()
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		e.mu.Unlock()
		return ExchangedToken{}, err
	}
	e.mu.Unlock()
	return ExchangedToken{
		AccessToken: fmt.Sprintf("token-%d", n),
		ExpiresIn:   e.expiresIn,
	}, nil
}

type recordingSink struct {
	id       string
	mu       sync.Mutex
	records  []TransitionRecord
	received chan TransitionRecord
	sendErr  error
}

func newRecordingSink(id string) *recordingSink {
	return &recordingSink{id: id, received: make(chan TransitionRecord, 64)}
}

func (s *recordingSink) ID() string { return s.id }

func (s *recordingSink) Send(_ context.Context, record TransitionRecord) error {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	select {
	case s.received <- record:
	default:
	}
	return s.sendErr
}

func (s *recordingSink) snapshot() []TransitionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransitionRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *recordingSink) next(t *testing.T) TransitionRecord {
	t.Helper()
	select {
	case record := <-s.received:
		return record
	case <-time.After(testWait):
		t.Fatalf("sink %s received no record", s.id)
		return TransitionRecord{}
	}
}

func (s *recordingSink) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case record := <-s.received:
		t.Fatalf("sink %s received unexpected record %+v", s.id, record)
	case <-time.After(wait):
	}
}

type captureActivity struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (a *captureActivity) Record(_ context.Context, entry ActivityEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *captureActivity) actions() []ActivityAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ActivityAction, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Action)
	}
	return out
}

func (a *captureActivity) has(action ActivityAction) bool {
	for _, item := range a.actions() {
		if item == action {
			return true
		}
	}
	return false
}

func waitForCondition(t *testing.T, description string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func newTestBroker(t *testing.T, exchanger *countingExchanger, cluster *fakeCluster) *CredentialBroker {
	t.Helper()
	broker, err := NewCredentialBroker(CredentialBrokerConfig{
		Exchanger:     exchanger,
		ClientFactory: &fakeClientFactory{cluster: cluster},
	})
	if err != nil {
		t.Fatalf("new credential broker: %v", err)
	}
	return broker
}

func newTestMultiplexer(t *testing.T, broker LeaseBroker, tracker *StatusDiffTracker, reset bool) *WatchMultiplexer {
	t.Helper()
	mux, err := NewWatchMultiplexer(WatchMultiplexerConfig{
		Broker:                   broker,
		Tracker:                  tracker,
		ResetSnapshotsOnTeardown: reset,
		SinkSendTimeout:          time.Second,
	})
	if err != nil {
		t.Fatalf("new watch multiplexer: %v", err)
	}
	t.Cleanup(func() { _ = mux.Close(context.Background()) })
	return mux
}
