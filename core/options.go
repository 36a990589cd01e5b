package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type gatewayBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorFactory     ErrorFactory
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	tokenExchanger   TokenExchanger
	clientFactory    ClientFactory
	activityRecorder ActivityRecorder
	now              func() time.Time
}

type Option func(*gatewayBuilder)

func WithLogger(logger Logger) Option {
	return func(b *gatewayBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *gatewayBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *gatewayBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *gatewayBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *gatewayBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *gatewayBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *gatewayBuilder) {
		b.optionsResolver = resolver
	}
}

// WithTokenExchanger sets the upstream token exchange used by the credential
// broker. Without one the gateway only starts in passthrough mode.
func WithTokenExchanger(exchanger TokenExchanger) Option {
	return func(b *gatewayBuilder) {
		b.tokenExchanger = exchanger
	}
}

func WithClientFactory(factory ClientFactory) Option {
	return func(b *gatewayBuilder) {
		b.clientFactory = factory
	}
}

func WithActivityRecorder(recorder ActivityRecorder) Option {
	return func(b *gatewayBuilder) {
		b.activityRecorder = recorder
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *gatewayBuilder) {
		b.now = now
	}
}

func defaultGatewayBuilder(runtime Config) gatewayBuilder {
	loggerProvider, logger := glog.Resolve("workspaces", nil, nil)
	return gatewayBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return workspaceErrorMapper(err)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw layer over defaults. Validation runs after the runtime
// layer is merged so that required values may come from either source.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap drops zero values from non-default layers so they do not
// shadow lower layers. Booleans therefore only ever switch features on.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	auth := map[string]any{}
	putString(auth, "exchange_url", cfg.Auth.ExchangeURL, includeZero)
	putString(auth, "client_id", cfg.Auth.ClientID, includeZero)
	putString(auth, "audience", cfg.Auth.Audience, includeZero)
	putDuration(auth, "timeout", cfg.Auth.Timeout, includeZero)
	putBool(auth, "passthrough", cfg.Auth.Passthrough, includeZero)
	putSection(layer, "auth", auth)

	kube := map[string]any{}
	putString(kube, "host", cfg.Kubernetes.Host, includeZero)
	putString(kube, "ca_file", cfg.Kubernetes.CAFile, includeZero)
	putBool(kube, "insecure", cfg.Kubernetes.Insecure, includeZero)
	putString(kube, "api_group", cfg.Kubernetes.APIGroup, includeZero)
	putString(kube, "api_version", cfg.Kubernetes.APIVersion, includeZero)
	putString(kube, "resource", cfg.Kubernetes.Resource, includeZero)
	putString(kube, "routing_class", cfg.Kubernetes.RoutingClass, includeZero)
	putSection(layer, "kubernetes", kube)

	lease := map[string]any{}
	putDuration(lease, "refresh_lead_window", cfg.Lease.RefreshLeadWindow, includeZero)
	putSection(layer, "lease", lease)

	watch := map[string]any{}
	putBool(watch, "reset_snapshots_on_teardown", cfg.Watch.ResetSnapshotsOnTeardown, includeZero)
	putDuration(watch, "sink_send_timeout", cfg.Watch.SinkSendTimeout, includeZero)
	putSection(layer, "watch", watch)

	creation := map[string]any{}
	if includeZero || cfg.Creation.MaxAttempts != 0 {
		creation["max_attempts"] = cfg.Creation.MaxAttempts
	}
	putDuration(creation, "interval", cfg.Creation.Interval, includeZero)
	putSection(layer, "creation", creation)

	server := map[string]any{}
	putString(server, "addr", cfg.Server.Addr, includeZero)
	putDuration(server, "ping_interval", cfg.Server.PingInterval, includeZero)
	putDuration(server, "write_timeout", cfg.Server.WriteTimeout, includeZero)
	putSection(layer, "server", server)

	persistence := map[string]any{}
	putBool(persistence, "enabled", cfg.Persistence.Enabled, includeZero)
	putString(persistence, "driver", cfg.Persistence.Driver, includeZero)
	putString(persistence, "dsn", cfg.Persistence.DSN, includeZero)
	putSection(layer, "persistence", persistence)

	return layer
}

func putString(section map[string]any, key, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		section[key] = value
	}
}

func putDuration(section map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		section[key] = value
	}
}

func putBool(section map[string]any, key string, value bool, includeZero bool) {
	if includeZero || value {
		section[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
