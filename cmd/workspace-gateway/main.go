package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-workspaces/adapters/gologger"
	"github.com/goliatone/go-workspaces/auth"
	"github.com/goliatone/go-workspaces/core"
	"github.com/goliatone/go-workspaces/inbound"
	"github.com/goliatone/go-workspaces/kube"
	"github.com/goliatone/go-workspaces/migrations"
	"github.com/goliatone/go-workspaces/ratelimit"
	sqlstore "github.com/goliatone/go-workspaces/store/sql"
	"github.com/goliatone/go-workspaces/transport"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "workspace-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts := NewOptions()
	fs := pflag.NewFlagSet("workspace-gateway", pflag.ContinueOnError)
	opts.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	provider := newRootLogger(os.Stderr, opts.LogLevel, opts.LogFormat)
	logger := gologger.Component(provider, "cmd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(ctx, opts)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	exchanger, err := newExchanger(cfg.Auth)
	if err != nil {
		return err
	}

	gatewayOpts := gologger.GatewayOptions(provider, nil)
	gatewayOpts = append(gatewayOpts,
		core.WithTokenExchanger(exchanger),
		core.WithClientFactory(kube.NewClientFactory(cfg.Kubernetes, kube.WithDiscoveryCache(cacheService))),
	)

	var activity *sqlstore.RepositoryFactory
	if cfg.Persistence.Enabled {
		client, err := openPersistence(ctx, cfg.Persistence)
		if err != nil {
			return err
		}
		defer client.Close()

		activity, err = sqlstore.NewRepositoryFactoryFromPersistence(client)
		if err != nil {
			return err
		}
		if err := activity.WithCache(cacheService); err != nil {
			return err
		}
		gatewayOpts = append(gatewayOpts, core.WithActivityRecorder(activity.ActivityRecorder()))
	}

	gateway, err := core.NewGateway(cfg, gatewayOpts...)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	watch, err := inbound.NewWatchHandler(inbound.WatchHandlerConfig{
		Subscriber:   gateway,
		Logger:       gologger.Component(provider, "inbound"),
		PingInterval: cfg.Server.PingInterval,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           inbound.NewRouter(watch),
		ReadHeaderTimeout: cfg.Server.WriteTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	if activity != nil && opts.PruneInterval > 0 {
		go pruneActivity(ctx, activity.WatchActivityStore(), sqlstore.RetentionPolicy{
			TTL:    opts.ActivityTTL,
			RowCap: opts.ActivityRowCap,
		}, opts.PruneInterval, gologger.Component(provider, "store"))
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("workspace gateway listening", "addr", cfg.Server.Addr, "passthrough", cfg.Auth.Passthrough)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)
	if err := gateway.Close(shutdownCtx); err != nil {
		logger.Warn("gateway close failed", "error", err)
	}
	return shutdownErr
}

// newRootLogger builds the go-logger root. Component loggers come from its
// GetLogger and carry the component name under "logger".
func newRootLogger(w io.Writer, level, format string) *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithLevel(strings.ToUpper(level)),
		glog.WithLoggerType(loggerType(format)),
		glog.WithWriter(w),
	)
}

func loggerType(format string) string {
	switch strings.ToLower(format) {
	case "text":
		return glog.LoggerTypeConsole
	case "pretty":
		return glog.LoggerTypePretty
	default:
		return glog.LoggerTypeJSON
	}
}

// resolveConfig layers the flag values over the defaults.
func resolveConfig(ctx context.Context, opts *Options) (core.Config, error) {
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: opts.RawConfig()}).Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}
	return core.GoOptionsResolver{}.Resolve(defaults, loaded, core.Config{})
}

func newExchanger(cfg core.AuthConfig) (core.TokenExchanger, error) {
	if cfg.Passthrough {
		return auth.NewPassthroughExchanger(), nil
	}
	return auth.NewTokenExchangeStrategy(auth.TokenExchangeStrategyConfig{
		URL:      cfg.ExchangeURL,
		ClientID: cfg.ClientID,
		Audience: cfg.Audience,
		Timeout:  cfg.Timeout,
		Adapter:  ratelimit.NewAdapter(transport.NewRESTAdapter(nil), nil),
	})
}

type persistenceConfig struct {
	core.PersistenceConfig
}

func (c persistenceConfig) GetDebug() bool {
	return false
}

func (c persistenceConfig) GetDriver() string {
	return c.Driver
}

func (c persistenceConfig) GetServer() string {
	return c.DSN
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "workspace-gateway"
}

func openPersistence(ctx context.Context, cfg core.PersistenceConfig) (*persistence.Client, error) {
	var dialect schema.Dialect
	switch cfg.Driver {
	case "postgres":
		dialect = pgdialect.New()
	default:
		dialect = sqlitedialect.New()
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{PersistenceConfig: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence: %w", err)
	}
	if err := migrations.Apply(ctx, client, cfg.Driver); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func pruneActivity(ctx context.Context, store *sqlstore.WatchActivityStore, policy sqlstore.RetentionPolicy, every time.Duration, logger core.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.Prune(ctx, policy)
			if err != nil {
				logger.Warn("activity prune failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Debug("activity pruned", "deleted", deleted)
			}
		}
	}
}
