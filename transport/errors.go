package transport

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-workspaces/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// StatusError converts a non-2xx response into a categorized error. It
// returns nil for successful responses.
func StatusError(res Response, operation string) error {
	if res.Successful() {
		return nil
	}
	category := statusCategory(res.StatusCode)
	message := fmt.Sprintf("transport: %s returned status %d", strings.TrimSpace(operation), res.StatusCode)
	if snippet := bodySnippet(res.Body); snippet != "" {
		message += ": " + snippet
	}
	code := res.StatusCode
	if code < 400 {
		code = http.StatusBadGateway
	}
	return transportError(message, category, code, map[string]any{
		"operation":   strings.TrimSpace(operation),
		"status_code": res.StatusCode,
	})
}

func statusCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

func bodySnippet(body []byte) string {
	const limit = 256
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		text = text[:limit]
	}
	return text
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.WorkspaceErrorBadInput
	case goerrors.CategoryNotFound:
		return core.WorkspaceErrorNotFound
	case goerrors.CategoryConflict:
		return core.WorkspaceErrorAlreadyExists
	case goerrors.CategoryAuth:
		return core.WorkspaceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return core.WorkspaceErrorForbidden
	case goerrors.CategoryRateLimit:
		return core.WorkspaceErrorRateLimited
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return core.WorkspaceErrorUpstreamFailed
	default:
		return core.WorkspaceErrorInternal
	}
}
