package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-workspaces/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is what the policy remembers about one upstream endpoint.
type State struct {
	Endpoint       string
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type StateStore interface {
	Get(ctx context.Context, endpoint string) (State, error)
	Upsert(ctx context.Context, state State) error
}

// Observation is the part of an upstream response the policy reads.
type Observation struct {
	StatusCode int
	Headers    map[string]string
}

type ThrottledError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: endpoint %q throttled for %s", strings.TrimSpace(e.Endpoint), e.RetryAfter)
}

func (e ThrottledError) ToWorkspaceError() *goerrors.Error {
	metadata := map[string]any{"endpoint": strings.TrimSpace(e.Endpoint)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.WorkspaceErrorRateLimited).
		WithMetadata(metadata)
}

// AdaptivePolicy refuses calls to an endpoint while it is inside a throttle
// window learned from earlier responses. Windows come from Retry-After when
// present and from exponential backoff otherwise.
type AdaptivePolicy struct {
	Store          StateStore
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, endpoint string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	endpoint = normalizeEndpoint(endpoint)
	state, err := p.Store.Get(ctx, endpoint)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Endpoint: endpoint, RetryAfter: until.Sub(now)}.ToWorkspaceError()
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return ThrottledError{Endpoint: endpoint, RetryAfter: state.ResetAt.Sub(now)}.ToWorkspaceError()
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, endpoint string, obs Observation) error {
	if p == nil || p.Store == nil {
		return nil
	}
	endpoint = normalizeEndpoint(endpoint)
	now := p.now()
	state, err := p.Store.Get(ctx, endpoint)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = State{Endpoint: endpoint}
	case err != nil:
		return err
	}

	state.LastStatus = obs.StatusCode
	state.UpdatedAt = now

	limit, hasLimit := parseHeaderInt(obs.Headers, "x-ratelimit-limit")
	if hasLimit {
		state.Limit = limit
	}
	remaining, hasRemaining := parseHeaderInt(obs.Headers, "x-ratelimit-remaining")
	if hasRemaining {
		state.Remaining = remaining
	}
	resetAt, hasResetAt := parseHeaderResetAt(obs.Headers)
	if hasResetAt {
		state.ResetAt = &resetAt
	}
	retryAfter, hasRetryAfter := parseRetryAfter(obs.Headers, now)
	state.RetryAfter = nil
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	}

	if obs.StatusCode == http.StatusTooManyRequests ||
		(obs.StatusCode < 500 && hasRemaining && state.Remaining == 0) {
		state.Attempts++
		delay := retryAfter
		if !hasRetryAfter {
			delay = p.nextBackoff(state.Attempts)
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts = 0
	state.ThrottledUntil = nil
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return delay
}

func parseRetryAfter(headers map[string]string, now time.Time) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := http.ParseTime(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseHeaderResetAt(headers map[string]string) (time.Time, bool) {
	unix, err := strconv.ParseInt(headerValue(headers, "x-ratelimit-reset"), 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeEndpoint(endpoint string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(endpoint)), "/")
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, endpoint string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[normalizeEndpoint(endpoint)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Endpoint = normalizeEndpoint(state.Endpoint)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Endpoint] = state
	return nil
}
