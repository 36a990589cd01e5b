package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-workspaces/core"
	"github.com/goliatone/go-workspaces/transport"
)

const (
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeAccessToken   = "urn:ietf:params:oauth:token-type:access_token"
)

type TokenExchangeStrategyConfig struct {
	URL      string
	ClientID string
	// Audience may list several audiences separated by commas.
	Audience string
	Timeout  time.Duration
	Adapter  transport.Adapter
	Now      func() time.Time
}

// TokenExchangeStrategy trades the caller's credential for a delegated
// cluster token at an OAuth 2.0 token exchange endpoint.
type TokenExchangeStrategy struct {
	config TokenExchangeStrategyConfig
}

func NewTokenExchangeStrategy(cfg TokenExchangeStrategyConfig) (*TokenExchangeStrategy, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, core.NewBadInput("auth: token exchange url is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, core.NewBadInput(fmt.Sprintf("auth: token exchange url is invalid: %v", err))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = core.DefaultExchangeTimeout
	}
	if cfg.Adapter == nil {
		cfg.Adapter = transport.NewRESTAdapter(nil)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	return &TokenExchangeStrategy{config: cfg}, nil
}

func (s *TokenExchangeStrategy) Exchange(ctx context.Context, rawCredential string) (core.ExchangedToken, error) {
	subject := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rawCredential), "Bearer "))
	if subject == "" {
		return core.ExchangedToken{}, core.NewBadInput("auth: credential is required")
	}

	form := url.Values{}
	form.Set("grant_type", GrantTypeTokenExchange)
	form.Set("subject_token", subject)
	form.Set("subject_token_type", TokenTypeAccessToken)
	form.Set("requested_token_type", TokenTypeAccessToken)
	if s.config.ClientID != "" {
		form.Set("client_id", s.config.ClientID)
	}
	for _, audience := range splitValues(s.config.Audience) {
		form.Add("audience", audience)
	}

	res, err := s.config.Adapter.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    s.config.URL,
		Headers: map[string]string{"Accept": "application/json"},
		Form:    form,
		Timeout: s.config.Timeout,
	})
	if err != nil {
		return core.ExchangedToken{}, err
	}
	if err := transport.StatusError(res, "token exchange"); err != nil {
		return core.ExchangedToken{}, err
	}

	payload := map[string]any{}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return core.ExchangedToken{}, fmt.Errorf("auth: decode token exchange response: %w", err)
	}
	accessToken := readString(payload, "access_token")
	if accessToken == "" {
		return core.ExchangedToken{}, fmt.Errorf("auth: token exchange response has no access_token")
	}
	expiresIn := readSeconds(payload, "expires_in")
	if expiresIn == 0 {
		expiresIn = tokenLifetime(accessToken, s.config.Now())
	}
	return core.ExchangedToken{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	}, nil
}

var _ core.TokenExchanger = (*TokenExchangeStrategy)(nil)
