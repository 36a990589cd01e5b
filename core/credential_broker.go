package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const leaseFlightKey = "lease"

// Lease is the current delegated credential and the client bound to it.
type Lease struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Client    ResourceClient
}

// Expired reports whether the lease must be replaced at now. A zero ExpiresAt
// means the exchange did not report a lifetime; such a lease is only replaced
// by ForceRefresh.
func (l Lease) Expired(now time.Time, leadWindow time.Duration) bool {
	if l.Client == nil || strings.TrimSpace(l.Token) == "" {
		return true
	}
	if l.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(l.ExpiresAt.Add(-leadWindow))
}

type CredentialBrokerConfig struct {
	Exchanger         TokenExchanger
	ClientFactory     ClientFactory
	RefreshLeadWindow time.Duration
	Now               func() time.Time
	Logger            Logger
	Metrics           MetricsRecorder
	Activity          ActivityRecorder
}

// CredentialBroker owns the lease. Concurrent callers that find the lease
// expired share a single token exchange.
type CredentialBroker struct {
	exchanger  TokenExchanger
	factory    ClientFactory
	leadWindow time.Duration
	now        func() time.Time
	activity   ActivityRecorder
	telemetry  telemetry

	mu     sync.RWMutex
	lease  *Lease
	flight singleflight.Group
}

func NewCredentialBroker(cfg CredentialBrokerConfig) (*CredentialBroker, error) {
	if cfg.Exchanger == nil {
		return nil, fmt.Errorf("core: token exchanger is required")
	}
	if cfg.ClientFactory == nil {
		return nil, fmt.Errorf("core: client factory is required")
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetricsRecorder{}
	}
	return &CredentialBroker{
		exchanger:  cfg.Exchanger,
		factory:    cfg.ClientFactory,
		leadWindow: cfg.RefreshLeadWindow,
		now:        cfg.Now,
		activity:   cfg.Activity,
		telemetry:  telemetry{logger: cfg.Logger, metrics: cfg.Metrics},
	}, nil
}

// EnsureValid returns a client bound to a non-expired lease, exchanging
// rawCredential when the lease is missing or expired.
func (b *CredentialBroker) EnsureValid(ctx context.Context, rawCredential string) (ResourceClient, error) {
	if b == nil {
		return nil, fmt.Errorf("core: credential broker is nil")
	}
	if current, ok := b.Current(); ok && !current.Expired(b.now(), b.leadWindow) {
		return current.Client, nil
	}
	lease, err := b.acquire(ctx, rawCredential, "", false)
	if err != nil {
		return nil, err
	}
	return lease.Client, nil
}

// ForceRefresh replaces the lease even if it has not expired. Used after the
// upstream rejected the current token.
func (b *CredentialBroker) ForceRefresh(ctx context.Context, rawCredential string) (ResourceClient, error) {
	if b == nil {
		return nil, fmt.Errorf("core: credential broker is nil")
	}
	stale := ""
	if current, ok := b.Current(); ok {
		stale = current.Token
	}
	lease, err := b.acquire(ctx, rawCredential, stale, true)
	if err != nil {
		return nil, err
	}
	return lease.Client, nil
}

func (b *CredentialBroker) Current() (Lease, bool) {
	if b == nil {
		return Lease{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lease == nil {
		return Lease{}, false
	}
	return *b.lease, true
}

func (b *CredentialBroker) acquire(ctx context.Context, rawCredential string, stale string, force bool) (Lease, error) {
	if strings.TrimSpace(rawCredential) == "" {
		return Lease{}, NewBadInput("core: credential is required")
	}
	// A forced caller may join a flight that started before its token was
	// rejected; one more flight is allowed in that case.
	for round := 0; round < 2; round++ {
		ch := b.flight.DoChan(leaseFlightKey, func() (any, error) {
			return b.refresh(context.WithoutCancel(ctx), rawCredential, stale, force)
		})
		select {
		case <-ctx.Done():
			return Lease{}, ctx.Err()
		case result := <-ch:
			if result.Err != nil {
				return Lease{}, result.Err
			}
			lease := result.Val.(Lease)
			if force && stale != "" && lease.Token == stale && round == 0 {
				continue
			}
			return lease, nil
		}
	}
	return Lease{}, NewAuthExchangeFailure(fmt.Errorf("core: rejected token was not replaced"))
}

func (b *CredentialBroker) refresh(ctx context.Context, rawCredential string, stale string, force bool) (Lease, error) {
	startedAt := time.Now()
	current, hasCurrent := b.Current()
	currentValid := hasCurrent && !current.Expired(b.now(), b.leadWindow)
	if currentValid && (!force || current.Token != stale) {
		return current, nil
	}

	exchanged, err := b.exchanger.Exchange(ctx, rawCredential)
	if err == nil && strings.TrimSpace(exchanged.AccessToken) == "" {
		err = fmt.Errorf("core: token exchange returned an empty access token")
	}
	if err != nil {
		if !currentValid {
			b.mu.Lock()
			b.lease = nil
			b.mu.Unlock()
		}
		failure := NewAuthExchangeFailure(err)
		b.telemetry.observeOperation(ctx, startedAt, "lease_exchange", failure, map[string]any{"forced": force})
		return Lease{}, failure
	}

	client, err := b.factory.NewClient(exchanged.AccessToken)
	if err != nil {
		failure := NewAuthExchangeFailure(err)
		b.telemetry.observeOperation(ctx, startedAt, "lease_exchange", failure, map[string]any{"forced": force})
		return Lease{}, failure
	}

	issuedAt := b.now()
	lease := Lease{
		Token:    exchanged.AccessToken,
		IssuedAt: issuedAt,
		Client:   client,
	}
	if exchanged.ExpiresIn > 0 {
		lease.ExpiresAt = issuedAt.Add(exchanged.ExpiresIn)
	}

	b.mu.Lock()
	b.lease = &lease
	b.mu.Unlock()

	b.telemetry.observeOperation(ctx, startedAt, "lease_exchange", nil, map[string]any{
		"forced":     force,
		"expires_at": lease.ExpiresAt,
	})
	if b.activity != nil {
		_ = b.activity.Record(ctx, ActivityEntry{
			Action:    ActivityLeaseRefreshed,
			Status:    "ok",
			CreatedAt: issuedAt,
			Metadata: map[string]any{
				"forced":     force,
				"expires_at": lease.ExpiresAt,
			},
		})
	}
	return lease, nil
}
