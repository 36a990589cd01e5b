package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Gateway struct {
	config           Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorFactory     ErrorFactory
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	activityRecorder ActivityRecorder
	broker           *CredentialBroker
	tracker          *StatusDiffTracker
	multiplexer      *WatchMultiplexer
	telemetry        telemetry
	now              func() time.Time
}

type GatewayDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorFactory     ErrorFactory
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	ActivityRecorder ActivityRecorder
	Broker           *CredentialBroker
	Tracker          *StatusDiffTracker
	Multiplexer      *WatchMultiplexer
}

func NewGateway(cfg Config, opts ...Option) (*Gateway, error) {
	builder := defaultGatewayBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("workspaces", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("workspaces"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	broker, err := NewCredentialBroker(CredentialBrokerConfig{
		Exchanger:         builder.tokenExchanger,
		ClientFactory:     builder.clientFactory,
		RefreshLeadWindow: finalConfig.Lease.RefreshLeadWindow,
		Now:               builder.now,
		Logger:            logger,
		Metrics:           builder.metricsRecorder,
		Activity:          builder.activityRecorder,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	tracker := NewStatusDiffTracker()
	multiplexer, err := NewWatchMultiplexer(WatchMultiplexerConfig{
		Broker:                   broker,
		Tracker:                  tracker,
		ResetSnapshotsOnTeardown: finalConfig.Watch.ResetSnapshotsOnTeardown,
		SinkSendTimeout:          finalConfig.Watch.SinkSendTimeout,
		Logger:                   logger,
		Metrics:                  builder.metricsRecorder,
		Activity:                 builder.activityRecorder,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Gateway{
		config:           finalConfig,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorFactory:     builder.errorFactory,
		errorMapper:      builder.errorMapper,
		configProvider:   builder.configProvider,
		optionsResolver:  builder.optionsResolver,
		activityRecorder: builder.activityRecorder,
		broker:           broker,
		tracker:          tracker,
		multiplexer:      multiplexer,
		telemetry:        telemetry{logger: logger, metrics: builder.metricsRecorder},
		now:              builder.now,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (g *Gateway) Config() Config {
	if g == nil {
		return Config{}
	}
	return g.config
}

func (g *Gateway) Dependencies() GatewayDependencies {
	if g == nil {
		return GatewayDependencies{}
	}
	return GatewayDependencies{
		Logger:           g.logger,
		LoggerProvider:   g.loggerProvider,
		MetricsRecorder:  g.metricsRecorder,
		ErrorFactory:     g.errorFactory,
		ErrorMapper:      g.errorMapper,
		ConfigProvider:   g.configProvider,
		OptionsResolver:  g.optionsResolver,
		ActivityRecorder: g.activityRecorder,
		Broker:           g.broker,
		Tracker:          g.tracker,
		Multiplexer:      g.multiplexer,
	}
}

// CreateAndWait creates a workspace and polls until the upstream has
// populated its status block. On CreationTimeout the workspace is left in
// place.
func (g *Gateway) CreateAndWait(ctx context.Context, credential string, req CreateRequest) (resource Resource, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"namespace": req.Namespace,
		"name":      req.Name,
	}
	defer func() {
		g.observeOperation(ctx, startedAt, "create_and_wait", err, fields)
	}()
	if g == nil {
		return Resource{}, fmt.Errorf("core: gateway is nil")
	}

	req.Namespace = strings.TrimSpace(req.Namespace)
	if req.Namespace == "" {
		err = g.mapError(NewBadInput("core: namespace is required"))
		return Resource{}, err
	}
	if strings.TrimSpace(req.RoutingClass) == "" {
		req.RoutingClass = g.config.Kubernetes.RoutingClass
	}
	if req.Started == nil {
		started := true
		req.Started = &started
	}

	var created Resource
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		if initializer, ok := client.(NamespaceInitializer); ok {
			if initErr := initializer.InitializeNamespace(ctx, req.Namespace); initErr != nil {
				return initErr
			}
		}
		var createErr error
		created, createErr = client.Create(ctx, req)
		return createErr
	})
	if err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}

	namespace := firstNonEmpty(created.Namespace, req.Namespace)
	name := firstNonEmpty(created.Name, req.Name)
	fields["name"] = name

	resource, err = AwaitReady(ctx, namespace, name, func(ctx context.Context) (Resource, error) {
		var found Resource
		lookupErr := g.withClient(ctx, credential, func(client ResourceClient) error {
			var getErr error
			found, getErr = client.Get(ctx, namespace, name)
			return getErr
		})
		return found, lookupErr
	}, PollOptions{
		MaxAttempts: g.config.Creation.MaxAttempts,
		Interval:    g.config.Creation.Interval,
	})
	if err != nil {
		g.recordActivity(ctx, ActivityEntry{
			Action:    ActivityCreateTimeout,
			Namespace: namespace,
			Resource:  name,
			Status:    "failed",
			Message:   err.Error(),
		})
		err = g.mapError(err)
		return Resource{}, err
	}
	g.recordActivity(ctx, ActivityEntry{
		Action:    ActivityCreateReady,
		Namespace: namespace,
		Resource:  name,
		Status:    "ok",
	})
	return resource, nil
}

func (g *Gateway) Subscribe(ctx context.Context, namespace string, sink Sink, credential string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"namespace": namespace}
	if sink != nil {
		fields["sink_id"] = sink.ID()
	}
	defer func() {
		g.observeOperation(ctx, startedAt, "subscribe", err, fields)
	}()
	if g == nil {
		return fmt.Errorf("core: gateway is nil")
	}
	if err = g.multiplexer.Subscribe(ctx, namespace, sink, credential); err != nil {
		err = g.mapError(err)
		return err
	}
	return nil
}

func (g *Gateway) Unsubscribe(ctx context.Context, namespace string, sinkID string) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "unsubscribe", err, map[string]any{
			"namespace": namespace,
			"sink_id":   sinkID,
		})
	}()
	if g == nil {
		return fmt.Errorf("core: gateway is nil")
	}
	if err = g.multiplexer.Unsubscribe(ctx, namespace, sinkID); err != nil {
		err = g.mapError(err)
		return err
	}
	return nil
}

func (g *Gateway) List(ctx context.Context, credential string, namespace string) (items []Resource, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "list", err, map[string]any{"namespace": namespace})
	}()
	if g == nil {
		return nil, fmt.Errorf("core: gateway is nil")
	}
	if strings.TrimSpace(namespace) == "" {
		err = g.mapError(NewBadInput("core: namespace is required"))
		return nil, err
	}
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		var listErr error
		items, listErr = client.List(ctx, namespace)
		return listErr
	})
	if err != nil {
		err = g.mapError(err)
		return nil, err
	}
	return items, nil
}

func (g *Gateway) Get(ctx context.Context, credential string, namespace, name string) (resource Resource, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "get", err, map[string]any{"namespace": namespace, "name": name})
	}()
	if g == nil {
		return Resource{}, fmt.Errorf("core: gateway is nil")
	}
	if err = requireNamespacedName(namespace, name); err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		var getErr error
		resource, getErr = client.Get(ctx, namespace, name)
		return getErr
	})
	if err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}
	return resource, nil
}

func (g *Gateway) Delete(ctx context.Context, credential string, namespace, name string) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "delete", err, map[string]any{"namespace": namespace, "name": name})
	}()
	if g == nil {
		return fmt.Errorf("core: gateway is nil")
	}
	if err = requireNamespacedName(namespace, name); err != nil {
		err = g.mapError(err)
		return err
	}
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		return client.Delete(ctx, namespace, name)
	})
	if err != nil {
		err = g.mapError(err)
		return err
	}
	return nil
}

func (g *Gateway) Patch(ctx context.Context, credential string, namespace, name string, ops []PatchOperation) (resource Resource, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "patch", err, map[string]any{
			"namespace":  namespace,
			"name":       name,
			"operations": len(ops),
		})
	}()
	if g == nil {
		return Resource{}, fmt.Errorf("core: gateway is nil")
	}
	if err = requireNamespacedName(namespace, name); err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}
	if len(ops) == 0 {
		err = g.mapError(NewBadInput("core: at least one patch operation is required"))
		return Resource{}, err
	}
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		var patchErr error
		resource, patchErr = client.Patch(ctx, namespace, name, ops)
		return patchErr
	})
	if err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}
	return resource, nil
}

// Update replaces the workspace document for namespace/name.
func (g *Gateway) Update(ctx context.Context, credential string, namespace, name string, document map[string]any) (resource Resource, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "update", err, map[string]any{"namespace": namespace, "name": name})
	}()
	if g == nil {
		return Resource{}, fmt.Errorf("core: gateway is nil")
	}
	if err = requireNamespacedName(namespace, name); err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}
	if len(document) == 0 {
		err = g.mapError(NewBadInput("core: workspace document is required"))
		return Resource{}, err
	}
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		updater, ok := client.(ResourceUpdater)
		if !ok {
			return NewBadInput("core: client does not support workspace updates")
		}
		var updateErr error
		resource, updateErr = updater.Update(ctx, namespace, name, document)
		return updateErr
	})
	if err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}
	return resource, nil
}

// ChangeStatus starts or stops a workspace by replacing spec.started.
func (g *Gateway) ChangeStatus(ctx context.Context, credential string, namespace, name string, started bool) (Resource, error) {
	return g.Patch(ctx, credential, namespace, name, []PatchOperation{{
		Op:    "replace",
		Path:  "/spec/started",
		Value: started,
	}})
}

// APIEnabled reports whether the cluster serves the workspace API group.
// Clients that cannot probe discovery are assumed to be enabled.
func (g *Gateway) APIEnabled(ctx context.Context, credential string) (enabled bool, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "api_enabled", err, map[string]any{"enabled": enabled})
	}()
	if g == nil {
		return false, fmt.Errorf("core: gateway is nil")
	}
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		probe, ok := client.(APIProbe)
		if !ok {
			enabled = true
			return nil
		}
		var probeErr error
		enabled, probeErr = probe.IsAPIEnabled(ctx)
		return probeErr
	})
	if err != nil {
		err = g.mapError(err)
		return false, err
	}
	return enabled, nil
}

func (g *Gateway) ListTemplates(ctx context.Context, credential string, namespace string) (items []Resource, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "list_templates", err, map[string]any{"namespace": namespace})
	}()
	if g == nil {
		return nil, fmt.Errorf("core: gateway is nil")
	}
	if strings.TrimSpace(namespace) == "" {
		err = g.mapError(NewBadInput("core: namespace is required"))
		return nil, err
	}
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		source, ok := client.(TemplateSource)
		if !ok {
			return NewBadInput("core: client does not serve workspace templates")
		}
		var listErr error
		items, listErr = source.ListTemplates(ctx, namespace)
		return listErr
	})
	if err != nil {
		err = g.mapError(err)
		return nil, err
	}
	return items, nil
}

func (g *Gateway) GetTemplate(ctx context.Context, credential string, namespace, name string) (resource Resource, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		g.observeOperation(ctx, startedAt, "get_template", err, map[string]any{"namespace": namespace, "name": name})
	}()
	if g == nil {
		return Resource{}, fmt.Errorf("core: gateway is nil")
	}
	if err = requireNamespacedName(namespace, name); err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}
	err = g.withClient(ctx, credential, func(client ResourceClient) error {
		source, ok := client.(TemplateSource)
		if !ok {
			return NewBadInput("core: client does not serve workspace templates")
		}
		var getErr error
		resource, getErr = source.GetTemplate(ctx, namespace, name)
		return getErr
	})
	if err != nil {
		err = g.mapError(err)
		return Resource{}, err
	}
	return resource, nil
}

func (g *Gateway) State(namespace string) WatchState {
	if g == nil {
		return WatchStateUnwatched
	}
	return g.multiplexer.State(namespace)
}

func (g *Gateway) Close(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.multiplexer.Close(ctx)
}

// withClient runs fn with a client bound to a valid lease. An upstream
// rejection of the token forces one lease refresh and one retry.
func (g *Gateway) withClient(ctx context.Context, credential string, fn func(client ResourceClient) error) error {
	client, err := g.broker.EnsureValid(ctx, credential)
	if err != nil {
		return err
	}
	err = fn(client)
	if err == nil || !IsUnauthorized(err) {
		return err
	}
	client, refreshErr := g.broker.ForceRefresh(ctx, credential)
	if refreshErr != nil {
		return refreshErr
	}
	return fn(client)
}

func (g *Gateway) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if g == nil {
		return
	}
	g.telemetry.observeOperation(ctx, startedAt, operation, err, fields)
}

func (g *Gateway) recordActivity(ctx context.Context, entry ActivityEntry) {
	if g == nil || g.activityRecorder == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = g.now()
	}
	if err := g.activityRecorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		g.telemetry.logWarn(ctx, "activity record failed", map[string]any{
			"action": string(entry.Action),
			"error":  err.Error(),
		})
	}
}

func (g *Gateway) mapError(err error) error {
	if err == nil {
		return nil
	}
	if g == nil || g.errorMapper == nil {
		return err
	}
	mapped := g.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func requireNamespacedName(namespace, name string) error {
	if strings.TrimSpace(namespace) == "" {
		return NewBadInput("core: namespace is required")
	}
	if strings.TrimSpace(name) == "" {
		return NewBadInput("core: name is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
