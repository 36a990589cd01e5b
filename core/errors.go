package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WorkspaceErrorBadInput           = "WORKSPACE_BAD_INPUT"
	WorkspaceErrorNotFound           = "WORKSPACE_NOT_FOUND"
	WorkspaceErrorAlreadyExists      = "WORKSPACE_ALREADY_EXISTS"
	WorkspaceErrorAuthExchangeFailed = "WORKSPACE_AUTH_EXCHANGE_FAILED"
	WorkspaceErrorUnauthorized       = "WORKSPACE_UNAUTHORIZED"
	WorkspaceErrorForbidden          = "WORKSPACE_FORBIDDEN"
	WorkspaceErrorWatchTransient     = "WORKSPACE_WATCH_TRANSIENT"
	WorkspaceErrorWatchFatal         = "WORKSPACE_WATCH_FATAL"
	WorkspaceErrorCreationTimeout    = "WORKSPACE_CREATION_TIMEOUT"
	WorkspaceErrorMalformedEvent     = "WORKSPACE_MALFORMED_EVENT"
	WorkspaceErrorUpstreamFailed     = "WORKSPACE_UPSTREAM_FAILED"
	WorkspaceErrorRateLimited        = "WORKSPACE_RATE_LIMITED"
	WorkspaceErrorInternal           = "WORKSPACE_INTERNAL_ERROR"
)

// NewAuthExchangeFailure reports a failed token exchange. It is never cached;
// the next caller retries the exchange.
func NewAuthExchangeFailure(source error) *goerrors.Error {
	return workspaceWrapError(
		source,
		goerrors.CategoryAuth,
		"token exchange failed",
		http.StatusUnauthorized,
		WorkspaceErrorAuthExchangeFailed,
		nil,
	)
}

func NewWatchTransientError(namespace string, source error) *goerrors.Error {
	return workspaceWrapError(
		source,
		goerrors.CategoryExternal,
		fmt.Sprintf("watch for namespace %q interrupted", namespace),
		http.StatusBadGateway,
		WorkspaceErrorWatchTransient,
		map[string]any{"namespace": namespace},
	)
}

func NewWatchFatalError(namespace string, source error) *goerrors.Error {
	return workspaceWrapError(
		source,
		goerrors.CategoryExternal,
		fmt.Sprintf("watch for namespace %q failed", namespace),
		http.StatusBadGateway,
		WorkspaceErrorWatchFatal,
		map[string]any{"namespace": namespace},
	)
}

func NewCreationTimeout(namespace, name string, attempts int) *goerrors.Error {
	return workspaceError(
		fmt.Sprintf("was not able to find a workspace with name %s in namespace %s", name, namespace),
		goerrors.CategoryOperation,
		http.StatusGatewayTimeout,
		WorkspaceErrorCreationTimeout,
		map[string]any{
			"namespace": namespace,
			"name":      name,
			"attempts":  attempts,
		},
	)
}

func NewMalformedEvent(namespace string, reason string) *goerrors.Error {
	return workspaceError(
		"malformed watch event: "+reason,
		goerrors.CategoryValidation,
		http.StatusUnprocessableEntity,
		WorkspaceErrorMalformedEvent,
		map[string]any{"namespace": namespace},
	)
}

func NewNotFound(namespace, name string) *goerrors.Error {
	return workspaceError(
		fmt.Sprintf("workspace %q not found in namespace %q", name, namespace),
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		WorkspaceErrorNotFound,
		map[string]any{"namespace": namespace, "name": name},
	)
}

func NewAlreadyExists(namespace, name string) *goerrors.Error {
	return workspaceError(
		fmt.Sprintf("workspace with name %q in namespace %q already exists", name, namespace),
		goerrors.CategoryConflict,
		http.StatusConflict,
		WorkspaceErrorAlreadyExists,
		map[string]any{"namespace": namespace, "name": name},
	)
}

func NewBadInput(message string) *goerrors.Error {
	return workspaceError(message, goerrors.CategoryBadInput, http.StatusBadRequest, WorkspaceErrorBadInput, nil)
}

func IsAuthExchangeFailure(err error) bool {
	return hasTextCode(err, WorkspaceErrorAuthExchangeFailed)
}

func IsWatchFatal(err error) bool {
	return hasTextCode(err, WorkspaceErrorWatchFatal)
}

func IsCreationTimeout(err error) bool {
	return hasTextCode(err, WorkspaceErrorCreationTimeout)
}

func IsMalformedEvent(err error) bool {
	return hasTextCode(err, WorkspaceErrorMalformedEvent)
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}

// IsUnauthorized reports upstream rejections of the bound token. These force
// a lease refresh instead of a plain resubscribe.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz:
			return true
		}
		switch strings.TrimSpace(strings.ToUpper(richErr.TextCode)) {
		case WorkspaceErrorUnauthorized, WorkspaceErrorForbidden:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden")
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
	}
	return false
}

func workspaceError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func workspaceWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return workspaceError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func workspaceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureWorkspaceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "already exists"):
		return newWorkspaceError(err.Error(), goerrors.CategoryConflict, WorkspaceErrorAlreadyExists)
	case strings.Contains(msg, "not found"):
		return newWorkspaceError(err.Error(), goerrors.CategoryNotFound, WorkspaceErrorNotFound)
	case strings.Contains(msg, "unauthorized"):
		return newWorkspaceError(err.Error(), goerrors.CategoryAuth, WorkspaceErrorUnauthorized)
	case strings.Contains(msg, "forbidden"):
		return newWorkspaceError(err.Error(), goerrors.CategoryAuthz, WorkspaceErrorForbidden)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newWorkspaceError(err.Error(), goerrors.CategoryRateLimit, WorkspaceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newWorkspaceError(err.Error(), goerrors.CategoryBadInput, WorkspaceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureWorkspaceErrorEnvelope(mapped)
}

func newWorkspaceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureWorkspaceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureWorkspaceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = workspaceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultWorkspaceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultWorkspaceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return WorkspaceErrorBadInput
	case goerrors.CategoryNotFound:
		return WorkspaceErrorNotFound
	case goerrors.CategoryAuth:
		return WorkspaceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return WorkspaceErrorForbidden
	case goerrors.CategoryConflict:
		return WorkspaceErrorAlreadyExists
	case goerrors.CategoryRateLimit:
		return WorkspaceErrorRateLimited
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return WorkspaceErrorUpstreamFailed
	default:
		return WorkspaceErrorInternal
	}
}

func workspaceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
