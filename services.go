package workspaces

import "github.com/goliatone/go-workspaces/core"

type Config = core.Config

type Option = core.Option

type Gateway = core.Gateway

type GatewayDependencies = core.GatewayDependencies
type ResourceClient = core.ResourceClient
type ClientFactory = core.ClientFactory
type TokenExchanger = core.TokenExchanger
type Sink = core.Sink

type Resource = core.Resource
type CreateRequest = core.CreateRequest
type PatchOperation = core.PatchOperation

type TransitionRecord = core.TransitionRecord

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithTokenExchanger   = core.WithTokenExchanger
	WithClientFactory    = core.WithClientFactory
	WithActivityRecorder = core.WithActivityRecorder
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewGateway(cfg Config, opts ...Option) (*Gateway, error) {
	return core.NewGateway(cfg, opts...)
}
