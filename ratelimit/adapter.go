package ratelimit

import (
	"context"
	"net/url"
	"strings"

	"github.com/goliatone/go-workspaces/transport"
)

// Adapter guards an outbound transport with an AdaptivePolicy. Calls are
// keyed by scheme, host and path so that query strings share one window.
type Adapter struct {
	next   transport.Adapter
	policy *AdaptivePolicy
}

func NewAdapter(next transport.Adapter, policy *AdaptivePolicy) *Adapter {
	if next == nil {
		next = transport.NewRESTAdapter(nil)
	}
	if policy == nil {
		policy = NewAdaptivePolicy(NewMemoryStateStore())
	}
	return &Adapter{next: next, policy: policy}
}

func (a *Adapter) Kind() string {
	return a.next.Kind()
}

func (a *Adapter) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	endpoint := EndpointKey(req.URL)
	if err := a.policy.BeforeCall(ctx, endpoint); err != nil {
		return transport.Response{}, err
	}
	res, err := a.next.Do(ctx, req)
	if err != nil {
		return res, err
	}
	if recordErr := a.policy.AfterCall(ctx, endpoint, Observation{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
	}); recordErr != nil {
		return res, recordErr
	}
	return res, nil
}

// EndpointKey drops the query and fragment from rawURL.
func EndpointKey(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return normalizeEndpoint(rawURL)
	}
	return normalizeEndpoint(parsed.Scheme + "://" + parsed.Host + parsed.Path)
}

var _ transport.Adapter = (*Adapter)(nil)
