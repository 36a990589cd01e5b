package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-workspaces/core"
)

// PassthroughExchanger binds the caller's own token to the cluster client.
// It is meant for development clusters that trust the identity provider
// directly.
type PassthroughExchanger struct {
	Now func() time.Time
}

func NewPassthroughExchanger() *PassthroughExchanger {
	return &PassthroughExchanger{Now: func() time.Time { return time.Now().UTC() }}
}

func (e *PassthroughExchanger) Exchange(_ context.Context, rawCredential string) (core.ExchangedToken, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rawCredential), "Bearer "))
	if token == "" {
		return core.ExchangedToken{}, core.NewBadInput("auth: credential is required")
	}
	now := time.Now().UTC()
	if e != nil && e.Now != nil {
		now = e.Now()
	}
	return core.ExchangedToken{
		AccessToken: token,
		ExpiresIn:   tokenLifetime(token, now),
	}, nil
}

var _ core.TokenExchanger = (*PassthroughExchanger)(nil)
