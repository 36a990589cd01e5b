package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAPIGroup           = "workspace.devfile.io"
	DefaultAPIVersion         = "v1alpha2"
	DefaultResource           = "devworkspaces"
	DefaultCreationAttempts   = 5
	DefaultExchangeTimeout    = 10 * time.Second
	DefaultSinkSendTimeout    = 5 * time.Second
	DefaultServerAddr         = ":8080"
	DefaultServerPingInterval = 30 * time.Second
	DefaultServerWriteTimeout = 10 * time.Second
)

type AuthConfig struct {
	ExchangeURL string        `koanf:"exchange_url" mapstructure:"exchange_url"`
	ClientID    string        `koanf:"client_id" mapstructure:"client_id"`
	Audience    string        `koanf:"audience" mapstructure:"audience"`
	Timeout     time.Duration `koanf:"timeout" mapstructure:"timeout"`
	Passthrough bool          `koanf:"passthrough" mapstructure:"passthrough"`
}

type KubernetesConfig struct {
	Host         string `koanf:"host" mapstructure:"host"`
	CAFile       string `koanf:"ca_file" mapstructure:"ca_file"`
	Insecure     bool   `koanf:"insecure" mapstructure:"insecure"`
	APIGroup     string `koanf:"api_group" mapstructure:"api_group"`
	APIVersion   string `koanf:"api_version" mapstructure:"api_version"`
	Resource     string `koanf:"resource" mapstructure:"resource"`
	RoutingClass string `koanf:"routing_class" mapstructure:"routing_class"`
}

type LeaseConfig struct {
	RefreshLeadWindow time.Duration `koanf:"refresh_lead_window" mapstructure:"refresh_lead_window"`
}

type WatchConfig struct {
	ResetSnapshotsOnTeardown bool          `koanf:"reset_snapshots_on_teardown" mapstructure:"reset_snapshots_on_teardown"`
	SinkSendTimeout          time.Duration `koanf:"sink_send_timeout" mapstructure:"sink_send_timeout"`
}

type CreationConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	Interval    time.Duration `koanf:"interval" mapstructure:"interval"`
}

type ServerConfig struct {
	Addr         string        `koanf:"addr" mapstructure:"addr"`
	PingInterval time.Duration `koanf:"ping_interval" mapstructure:"ping_interval"`
	WriteTimeout time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
}

type PersistenceConfig struct {
	Enabled bool   `koanf:"enabled" mapstructure:"enabled"`
	Driver  string `koanf:"driver" mapstructure:"driver"`
	DSN     string `koanf:"dsn" mapstructure:"dsn"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Auth        AuthConfig        `koanf:"auth" mapstructure:"auth"`
	Kubernetes  KubernetesConfig  `koanf:"kubernetes" mapstructure:"kubernetes"`
	Lease       LeaseConfig       `koanf:"lease" mapstructure:"lease"`
	Watch       WatchConfig       `koanf:"watch" mapstructure:"watch"`
	Creation    CreationConfig    `koanf:"creation" mapstructure:"creation"`
	Server      ServerConfig      `koanf:"server" mapstructure:"server"`
	Persistence PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "workspaces",
		Auth: AuthConfig{
			Timeout: DefaultExchangeTimeout,
		},
		Kubernetes: KubernetesConfig{
			APIGroup:   DefaultAPIGroup,
			APIVersion: DefaultAPIVersion,
			Resource:   DefaultResource,
		},
		Watch: WatchConfig{
			SinkSendTimeout: DefaultSinkSendTimeout,
		},
		Creation: CreationConfig{
			MaxAttempts: DefaultCreationAttempts,
		},
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			PingInterval: DefaultServerPingInterval,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Persistence: PersistenceConfig{
			Driver: "sqlite3",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if !c.Auth.Passthrough && strings.TrimSpace(c.Auth.ExchangeURL) == "" {
		return fmt.Errorf("core: auth.exchange_url is required unless auth.passthrough is enabled")
	}
	if c.Creation.MaxAttempts < 0 {
		return fmt.Errorf("core: creation.max_attempts must not be negative")
	}
	if c.Creation.Interval < 0 {
		return fmt.Errorf("core: creation.interval must not be negative")
	}
	if c.Lease.RefreshLeadWindow < 0 {
		return fmt.Errorf("core: lease.refresh_lead_window must not be negative")
	}
	if c.Persistence.Enabled {
		switch strings.TrimSpace(c.Persistence.Driver) {
		case "sqlite3", "postgres":
		default:
			return fmt.Errorf("core: persistence.driver %q is invalid", c.Persistence.Driver)
		}
		if strings.TrimSpace(c.Persistence.DSN) == "" {
			return fmt.Errorf("core: persistence.dsn is required when persistence is enabled")
		}
	}
	return nil
}
