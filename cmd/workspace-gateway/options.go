package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-workspaces/core"
	"github.com/spf13/pflag"
)

const (
	envExchangeURL = "WORKSPACES_TOKEN_EXCHANGE_URL"
	envDSN         = "WORKSPACES_PERSISTENCE_DSN"
)

// Options holds the command-line surface of the gateway binary. Zero values
// leave the corresponding config key to the defaults layer.
type Options struct {
	Addr         string
	PingInterval time.Duration
	WriteTimeout time.Duration

	ExchangeURL     string
	ClientID        string
	Audience        string
	ExchangeTimeout time.Duration
	Passthrough     bool

	KubeHost     string
	KubeCAFile   string
	KubeInsecure bool
	APIVersion   string
	RoutingClass string

	RefreshLeadWindow        time.Duration
	ResetSnapshotsOnTeardown bool
	CreationAttempts         int
	CreationInterval         time.Duration

	PersistenceDriver string
	PersistenceDSN    string
	ActivityTTL       time.Duration
	ActivityRowCap    int
	PruneInterval     time.Duration

	LogLevel  string
	LogFormat string

	fs *pflag.FlagSet
}

func NewOptions() *Options {
	return &Options{
		Addr:              core.DefaultServerAddr,
		PingInterval:      core.DefaultServerPingInterval,
		WriteTimeout:      core.DefaultServerWriteTimeout,
		ExchangeURL:       os.Getenv(envExchangeURL),
		PersistenceDriver: "sqlite3",
		PersistenceDSN:    os.Getenv(envDSN),
		ActivityTTL:       7 * 24 * time.Hour,
		ActivityRowCap:    10000,
		PruneInterval:     time.Hour,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// AddFlags binds the Options fields to flags on fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	o.fs = fs

	fs.StringVar(&o.Addr, "addr", o.Addr, "Listen address for the watch endpoint.")
	fs.DurationVar(&o.PingInterval, "ping-interval", o.PingInterval, "Interval between websocket pings.")
	fs.DurationVar(&o.WriteTimeout, "write-timeout", o.WriteTimeout, "Deadline for a single websocket write.")

	fs.StringVar(&o.ExchangeURL, "token-exchange-url", o.ExchangeURL,
		"OAuth 2.0 token exchange endpoint. Defaults to $"+envExchangeURL+".")
	fs.StringVar(&o.ClientID, "client-id", o.ClientID, "Client id sent with token exchange requests.")
	fs.StringVar(&o.Audience, "audience", o.Audience, "Comma separated audiences requested on exchange.")
	fs.DurationVar(&o.ExchangeTimeout, "exchange-timeout", o.ExchangeTimeout, "Timeout for a token exchange round trip.")
	fs.BoolVar(&o.Passthrough, "passthrough", o.Passthrough,
		"Use the caller's token against the cluster directly instead of exchanging it.")

	fs.StringVar(&o.KubeHost, "kube-host", o.KubeHost,
		"Kubernetes API server URL. Defaults to the in-cluster service address.")
	fs.StringVar(&o.KubeCAFile, "kube-ca-file", o.KubeCAFile, "CA bundle for the Kubernetes API server.")
	fs.BoolVar(&o.KubeInsecure, "kube-insecure", o.KubeInsecure, "Skip TLS verification of the Kubernetes API server.")
	fs.StringVar(&o.APIVersion, "api-version", o.APIVersion, "DevWorkspace API version.")
	fs.StringVar(&o.RoutingClass, "routing-class", o.RoutingClass, "Routing class applied to created workspaces.")

	fs.DurationVar(&o.RefreshLeadWindow, "refresh-lead-window", o.RefreshLeadWindow,
		"How long before token expiry a lease is refreshed.")
	fs.BoolVar(&o.ResetSnapshotsOnTeardown, "reset-snapshots-on-teardown", o.ResetSnapshotsOnTeardown,
		"Forget status snapshots of a namespace when its last subscriber leaves.")
	fs.IntVar(&o.CreationAttempts, "creation-attempts", o.CreationAttempts, "Lookups made before a create is abandoned.")
	fs.DurationVar(&o.CreationInterval, "creation-interval", o.CreationInterval, "Delay between creation lookups.")

	fs.StringVar(&o.PersistenceDriver, "persistence-driver", o.PersistenceDriver, "Activity store driver: sqlite3 or postgres.")
	fs.StringVar(&o.PersistenceDSN, "persistence-dsn", o.PersistenceDSN,
		"Activity store DSN. Persistence is off when empty. Defaults to $"+envDSN+".")
	fs.DurationVar(&o.ActivityTTL, "activity-ttl", o.ActivityTTL, "Age after which activity rows are pruned.")
	fs.IntVar(&o.ActivityRowCap, "activity-row-cap", o.ActivityRowCap, "Maximum activity rows kept.")
	fs.DurationVar(&o.PruneInterval, "prune-interval", o.PruneInterval, "Interval between activity prunes. 0 disables pruning.")

	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: debug, info, warn or error.")
	fs.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log format: json, text or pretty.")
}

// Validate checks the flag values that config validation does not cover.
func (o *Options) Validate() error {
	switch strings.ToLower(o.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid value %q for flag %q", o.LogLevel, "log-level")
	}
	switch strings.ToLower(o.LogFormat) {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("invalid value %q for flag %q", o.LogFormat, "log-format")
	}
	if o.ActivityRowCap < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", o.ActivityRowCap, "activity-row-cap")
	}
	if o.ActivityTTL < 0 || o.PruneInterval < 0 {
		return fmt.Errorf("activity-ttl and prune-interval must not be negative")
	}
	return nil
}

// RawConfig renders the options as the raw layer consumed by the config
// provider. Unset flags are omitted so that defaults still apply.
func (o *Options) RawConfig() map[string]any {
	raw := map[string]any{}
	section := func(name string) map[string]any {
		if existing, ok := raw[name].(map[string]any); ok {
			return existing
		}
		created := map[string]any{}
		raw[name] = created
		return created
	}
	setString := func(sectionName, key, value string) {
		if strings.TrimSpace(value) != "" {
			section(sectionName)[key] = strings.TrimSpace(value)
		}
	}
	setDuration := func(sectionName, key string, value time.Duration) {
		if value > 0 {
			section(sectionName)[key] = value
		}
	}

	setString("server", "addr", o.Addr)
	setDuration("server", "ping_interval", o.PingInterval)
	setDuration("server", "write_timeout", o.WriteTimeout)

	setString("auth", "exchange_url", o.ExchangeURL)
	setString("auth", "client_id", o.ClientID)
	setString("auth", "audience", o.Audience)
	setDuration("auth", "timeout", o.ExchangeTimeout)
	if o.Passthrough {
		section("auth")["passthrough"] = true
	}

	setString("kubernetes", "host", o.KubeHost)
	setString("kubernetes", "ca_file", o.KubeCAFile)
	setString("kubernetes", "api_version", o.APIVersion)
	setString("kubernetes", "routing_class", o.RoutingClass)
	if o.KubeInsecure {
		section("kubernetes")["insecure"] = true
	}

	setDuration("lease", "refresh_lead_window", o.RefreshLeadWindow)
	if o.ResetSnapshotsOnTeardown {
		section("watch")["reset_snapshots_on_teardown"] = true
	}
	if o.CreationAttempts > 0 {
		section("creation")["max_attempts"] = o.CreationAttempts
	}
	setDuration("creation", "interval", o.CreationInterval)

	if strings.TrimSpace(o.PersistenceDSN) != "" {
		section("persistence")["enabled"] = true
		setString("persistence", "driver", o.PersistenceDriver)
		setString("persistence", "dsn", o.PersistenceDSN)
	}
	return raw
}
