package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type WatchState string

const (
	WatchStateUnwatched WatchState = "UNWATCHED"
	WatchStateStarting  WatchState = "STARTING"
	WatchStateActive    WatchState = "ACTIVE"
	WatchStateStopping  WatchState = "STOPPING"
	WatchStateErrored   WatchState = "ERRORED"
)

const defaultStableStreamWindow = 30 * time.Second

// LeaseBroker hands out clients bound to a valid lease.
type LeaseBroker interface {
	EnsureValid(ctx context.Context, rawCredential string) (ResourceClient, error)
	ForceRefresh(ctx context.Context, rawCredential string) (ResourceClient, error)
}

type WatchMultiplexerConfig struct {
	Broker  LeaseBroker
	Tracker *StatusDiffTracker
	// ResetSnapshotsOnTeardown drops a group's status snapshots when its
	// watch is torn down. By default snapshots survive re-subscription.
	ResetSnapshotsOnTeardown bool
	SinkSendTimeout          time.Duration
	// StableStreamWindow is how long a resubscribed stream must stay open
	// before a new failure counts as fresh rather than repeated.
	StableStreamWindow time.Duration
	Logger             Logger
	Metrics            MetricsRecorder
	Activity           ActivityRecorder
}

// registeredSink serialises sends with removal so that no record reaches a
// sink after Unsubscribe returned. Sink.Send must not call Unsubscribe for
// itself.
type registeredSink struct {
	sink    Sink
	mu      sync.Mutex
	removed bool
}

type groupWatch struct {
	group        string
	state        WatchState
	sinks        map[string]*registeredSink
	credential   string
	watcher      Watcher
	cancel       context.CancelFunc
	ready        chan struct{}
	startErr     error
	lastError    error
	resubscribed bool
	healthy      bool
	openedAt     time.Time
}

// WatchMultiplexer keeps at most one upstream watch per namespace and fans
// its transition records out to every registered sink.
type WatchMultiplexer struct {
	broker       LeaseBroker
	tracker      *StatusDiffTracker
	resetOnClose bool
	sendTimeout  time.Duration
	stableWindow time.Duration
	activity     ActivityRecorder
	telemetry    telemetry

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.Mutex
	groups    map[string]*groupWatch
	sinkIndex map[string]string
}

func NewWatchMultiplexer(cfg WatchMultiplexerConfig) (*WatchMultiplexer, error) {
	if cfg.Broker == nil {
		return nil, fmt.Errorf("core: lease broker is required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewStatusDiffTracker()
	}
	if cfg.SinkSendTimeout <= 0 {
		cfg.SinkSendTimeout = DefaultSinkSendTimeout
	}
	if cfg.StableStreamWindow <= 0 {
		cfg.StableStreamWindow = defaultStableStreamWindow
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetricsRecorder{}
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &WatchMultiplexer{
		broker:       cfg.Broker,
		tracker:      cfg.Tracker,
		resetOnClose: cfg.ResetSnapshotsOnTeardown,
		sendTimeout:  cfg.SinkSendTimeout,
		stableWindow: cfg.StableStreamWindow,
		activity:     cfg.Activity,
		telemetry:    telemetry{logger: cfg.Logger, metrics: cfg.Metrics},
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
		groups:       make(map[string]*groupWatch),
		sinkIndex:    make(map[string]string),
	}, nil
}

// Subscribe registers sink for group, opening the upstream watch when sink is
// the group's first. Registering the same sink twice is a no-op; a sink that
// was registered for another group is moved.
func (m *WatchMultiplexer) Subscribe(ctx context.Context, group string, sink Sink, credential string) error {
	if m == nil {
		return fmt.Errorf("core: watch multiplexer is nil")
	}
	group = strings.TrimSpace(group)
	if group == "" {
		return NewBadInput("core: namespace is required")
	}
	if sink == nil || strings.TrimSpace(sink.ID()) == "" {
		return NewBadInput("core: sink with id is required")
	}
	sinkID := sink.ID()

	client, err := m.broker.EnsureValid(ctx, credential)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if previous, ok := m.sinkIndex[sinkID]; ok && previous != group {
		m.mu.Unlock()
		if err := m.Unsubscribe(ctx, previous, sinkID); err != nil {
			return err
		}
		m.mu.Lock()
	}

	gw := m.groups[group]
	if gw != nil {
		gw.credential = credential
		added := false
		if _, exists := gw.sinks[sinkID]; !exists {
			gw.sinks[sinkID] = &registeredSink{sink: sink}
			m.sinkIndex[sinkID] = group
			added = true
		}
		ready := gw.ready
		m.mu.Unlock()

		if added {
			m.recordActivity(ctx, ActivitySubscribed, group, sinkID, "")
		}
		select {
		case <-ready:
		case <-ctx.Done():
			if added {
				_ = m.Unsubscribe(context.WithoutCancel(ctx), group, sinkID)
			}
			return ctx.Err()
		}
		m.mu.Lock()
		startErr := gw.startErr
		m.mu.Unlock()
		return startErr
	}

	gw = &groupWatch{
		group:      group,
		state:      WatchStateStarting,
		sinks:      map[string]*registeredSink{sinkID: {sink: sink}},
		credential: credential,
		ready:      make(chan struct{}),
	}
	m.groups[group] = gw
	m.sinkIndex[sinkID] = group
	m.mu.Unlock()

	m.recordActivity(ctx, ActivitySubscribed, group, sinkID, "")
	return m.start(ctx, gw, client)
}

func (m *WatchMultiplexer) start(ctx context.Context, gw *groupWatch, client ResourceClient) error {
	startedAt := time.Now()
	watchCtx, cancel := context.WithCancel(m.baseCtx)

	watcher, err := client.Watch(watchCtx, gw.group)
	if err != nil && IsUnauthorized(err) {
		if refreshed, refreshErr := m.broker.ForceRefresh(ctx, gw.credential); refreshErr == nil {
			watcher, err = refreshed.Watch(watchCtx, gw.group)
		} else {
			err = refreshErr
		}
	}

	m.mu.Lock()
	if err != nil {
		gw.startErr = err
		gw.state = WatchStateUnwatched
		m.removeGroupLocked(gw)
		close(gw.ready)
		m.mu.Unlock()
		cancel()
		m.telemetry.observeOperation(ctx, startedAt, "watch_open", err, map[string]any{"namespace": gw.group})
		return err
	}
	if len(gw.sinks) == 0 || m.groups[gw.group] != gw {
		gw.state = WatchStateUnwatched
		m.removeGroupLocked(gw)
		close(gw.ready)
		m.mu.Unlock()
		cancel()
		watcher.Stop()
		return nil
	}
	gw.state = WatchStateActive
	gw.watcher = watcher
	gw.cancel = cancel
	gw.openedAt = time.Now()
	close(gw.ready)
	m.mu.Unlock()

	m.telemetry.recordCounter(ctx, "workspaces.watch.opened.total", 1, map[string]string{"namespace": gw.group})
	m.telemetry.observeOperation(ctx, startedAt, "watch_open", nil, map[string]any{"namespace": gw.group})
	m.recordActivity(ctx, ActivityWatchOpened, gw.group, "", "")

	go m.consume(watchCtx, gw, watcher)
	return nil
}

// consume is the single consumer of a group's upstream stream. Records are
// delivered in the order the stream produced them.
func (m *WatchMultiplexer) consume(ctx context.Context, gw *groupWatch, watcher Watcher) {
	for {
		select {
		case <-ctx.Done():
			watcher.Stop()
			return
		case event, ok := <-watcher.Events():
			if ctx.Err() != nil {
				watcher.Stop()
				return
			}
			var failure error
			switch {
			case !ok:
				failure = NewWatchTransientError(gw.group, fmt.Errorf("upstream stream closed"))
			case event.Type == WatchEventError:
				failure = event.Err
				if failure == nil {
					failure = fmt.Errorf("upstream reported an error event")
				}
			}
			if failure != nil {
				next, resumed := m.recover(ctx, gw, watcher, failure)
				if !resumed {
					return
				}
				watcher = next
				continue
			}

			record, err := m.tracker.Observe(gw.group, event)
			if err != nil {
				m.telemetry.logWarn(ctx, "dropping malformed watch event", map[string]any{
					"namespace":  gw.group,
					"event_type": string(event.Type),
					"error":      err.Error(),
				})
				continue
			}
			m.mu.Lock()
			gw.healthy = true
			m.mu.Unlock()
			m.deliver(ctx, gw, record)
		}
	}
}

// recover handles a failed stream: one resubscribe, preceded by a forced
// lease refresh when the upstream rejected the token. A repeated failure or a
// failed refresh tears the group down and notifies every sink.
func (m *WatchMultiplexer) recover(ctx context.Context, gw *groupWatch, failed Watcher, cause error) (Watcher, bool) {
	failed.Stop()

	m.mu.Lock()
	if m.groups[gw.group] != gw || len(gw.sinks) == 0 {
		m.teardownLocked(gw)
		m.mu.Unlock()
		return nil, false
	}
	repeated := gw.resubscribed && !gw.healthy && time.Since(gw.openedAt) < m.stableWindow
	gw.state = WatchStateErrored
	gw.lastError = cause
	credential := gw.credential
	m.mu.Unlock()

	authFailure := IsUnauthorized(cause)
	m.telemetry.logWarn(ctx, "watch stream failed", map[string]any{
		"namespace": gw.group,
		"error":     cause.Error(),
		"auth":      authFailure,
		"repeated":  repeated,
	})
	if repeated {
		m.failGroup(ctx, gw, NewWatchFatalError(gw.group, cause))
		return nil, false
	}

	var (
		client ResourceClient
		err    error
	)
	if authFailure {
		client, err = m.broker.ForceRefresh(ctx, credential)
	} else {
		client, err = m.broker.EnsureValid(ctx, credential)
	}
	if err != nil {
		m.failGroup(ctx, gw, NewWatchFatalError(gw.group, err))
		return nil, false
	}

	m.mu.Lock()
	if m.groups[gw.group] != gw || len(gw.sinks) == 0 {
		m.teardownLocked(gw)
		m.mu.Unlock()
		return nil, false
	}
	gw.state = WatchStateStarting
	m.mu.Unlock()

	next, err := client.Watch(ctx, gw.group)
	if err != nil {
		m.failGroup(ctx, gw, NewWatchFatalError(gw.group, err))
		return nil, false
	}

	m.mu.Lock()
	if m.groups[gw.group] != gw || len(gw.sinks) == 0 {
		m.teardownLocked(gw)
		m.mu.Unlock()
		next.Stop()
		return nil, false
	}
	gw.state = WatchStateActive
	gw.watcher = next
	gw.resubscribed = true
	gw.healthy = false
	gw.openedAt = time.Now()
	m.mu.Unlock()

	m.telemetry.recordCounter(ctx, "workspaces.watch.opened.total", 1, map[string]string{"namespace": gw.group})
	m.recordActivity(ctx, ActivityWatchOpened, gw.group, "", "resubscribed")
	return next, true
}

func (m *WatchMultiplexer) failGroup(ctx context.Context, gw *groupWatch, fatal error) {
	m.mu.Lock()
	sinks := sortedSinks(gw.sinks)
	gw.lastError = fatal
	if m.groups[gw.group] == gw {
		for id := range gw.sinks {
			delete(m.sinkIndex, id)
		}
		gw.sinks = map[string]*registeredSink{}
		m.teardownLocked(gw)
	}
	m.mu.Unlock()

	m.telemetry.logError(ctx, "watch torn down", map[string]any{
		"namespace": gw.group,
		"error":     fatal.Error(),
		"sinks":     len(sinks),
	})
	m.recordActivity(ctx, ActivityWatchFailed, gw.group, "", fatal.Error())

	notice := TransitionRecord{Error: fatal.Error()}
	for _, rs := range sinks {
		m.sendTo(context.WithoutCancel(ctx), gw.group, rs, notice)
		rs.mu.Lock()
		rs.removed = true
		rs.mu.Unlock()
	}
}

func (m *WatchMultiplexer) deliver(ctx context.Context, gw *groupWatch, record TransitionRecord) {
	m.mu.Lock()
	sinks := sortedSinks(gw.sinks)
	m.mu.Unlock()

	for _, rs := range sinks {
		if ctx.Err() != nil {
			return
		}
		m.sendTo(ctx, gw.group, rs, record)
	}
}

func (m *WatchMultiplexer) sendTo(ctx context.Context, group string, rs *registeredSink, record TransitionRecord) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.removed {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()
	if err := rs.sink.Send(sendCtx, record); err != nil {
		m.telemetry.logWarn(ctx, "sink delivery failed", map[string]any{
			"namespace": group,
			"sink_id":   rs.sink.ID(),
			"error":     err.Error(),
		})
	}
}

// Unsubscribe removes the sink from group. When it returns the sink receives
// no further records. Removing the last sink stops the upstream watch.
func (m *WatchMultiplexer) Unsubscribe(ctx context.Context, group string, sinkID string) error {
	if m == nil {
		return fmt.Errorf("core: watch multiplexer is nil")
	}
	group = strings.TrimSpace(group)

	m.mu.Lock()
	gw := m.groups[group]
	if gw == nil {
		m.mu.Unlock()
		return nil
	}
	rs, ok := gw.sinks[sinkID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(gw.sinks, sinkID)
	if m.sinkIndex[sinkID] == group {
		delete(m.sinkIndex, sinkID)
	}
	var (
		watcher Watcher
		cancel  context.CancelFunc
		last    bool
	)
	if len(gw.sinks) == 0 && gw.state != WatchStateStarting {
		last = true
		gw.state = WatchStateStopping
		watcher = gw.watcher
		cancel = gw.cancel
		m.teardownLocked(gw)
	}
	m.mu.Unlock()

	rs.mu.Lock()
	rs.removed = true
	rs.mu.Unlock()

	m.recordActivity(ctx, ActivityUnsubscribed, group, sinkID, "")
	if last {
		if cancel != nil {
			cancel()
		}
		if watcher != nil {
			watcher.Stop()
		}
		m.recordActivity(ctx, ActivityWatchClosed, group, "", "")
		m.telemetry.logInfo(ctx, "watch closed", map[string]any{"namespace": group})
	}
	return nil
}

func (m *WatchMultiplexer) State(group string) WatchState {
	if m == nil {
		return WatchStateUnwatched
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if gw, ok := m.groups[strings.TrimSpace(group)]; ok {
		return gw.state
	}
	return WatchStateUnwatched
}

func (m *WatchMultiplexer) SinkCount(group string) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if gw, ok := m.groups[strings.TrimSpace(group)]; ok {
		return len(gw.sinks)
	}
	return 0
}

func (m *WatchMultiplexer) Groups() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.groups))
	for group := range m.groups {
		out = append(out, group)
	}
	sort.Strings(out)
	return out
}

// Close stops every upstream watch and drops all sinks without notifying
// them.
func (m *WatchMultiplexer) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	groups := make([]*groupWatch, 0, len(m.groups))
	for _, gw := range m.groups {
		groups = append(groups, gw)
	}
	watchers := make([]Watcher, 0, len(groups))
	for _, gw := range groups {
		if gw.watcher != nil {
			watchers = append(watchers, gw.watcher)
		}
		for _, rs := range gw.sinks {
			rs.mu.Lock()
			rs.removed = true
			rs.mu.Unlock()
		}
		gw.sinks = map[string]*registeredSink{}
		gw.state = WatchStateStopping
		m.teardownLocked(gw)
	}
	m.sinkIndex = make(map[string]string)
	m.mu.Unlock()

	m.baseCancel()
	for _, watcher := range watchers {
		watcher.Stop()
	}
	for _, gw := range groups {
		m.recordActivity(ctx, ActivityWatchClosed, gw.group, "", "shutdown")
	}
	return nil
}

// teardownLocked removes the group entry. Callers hold m.mu.
func (m *WatchMultiplexer) teardownLocked(gw *groupWatch) {
	current := m.groups[gw.group] == gw
	gw.state = WatchStateUnwatched
	if gw.cancel != nil {
		gw.cancel()
	}
	m.removeGroupLocked(gw)
	if current && m.resetOnClose {
		m.tracker.Forget(gw.group)
	}
}

func (m *WatchMultiplexer) removeGroupLocked(gw *groupWatch) {
	if current, ok := m.groups[gw.group]; ok && current == gw {
		delete(m.groups, gw.group)
	}
	newer := m.groups[gw.group]
	for id := range gw.sinks {
		if newer != nil {
			if _, moved := newer.sinks[id]; moved {
				continue
			}
		}
		if m.sinkIndex[id] == gw.group {
			delete(m.sinkIndex, id)
		}
	}
}

func (m *WatchMultiplexer) recordActivity(ctx context.Context, action ActivityAction, group, sinkID, message string) {
	if m.activity == nil {
		return
	}
	status := "ok"
	if action == ActivityWatchFailed {
		status = "failed"
	}
	_ = m.activity.Record(context.WithoutCancel(ctx), ActivityEntry{
		Action:    action,
		Namespace: group,
		SinkID:    sinkID,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}

func sortedSinks(sinks map[string]*registeredSink) []*registeredSink {
	ids := make([]string, 0, len(sinks))
	for id := range sinks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*registeredSink, 0, len(ids))
	for _, id := range ids {
		out = append(out, sinks[id])
	}
	return out
}
