package kube

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-workspaces/core"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// mapError converts API server status errors into workspace envelopes so the
// gateway can tell token rejections from missing resources.
func mapError(err error, namespace, name string) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return err
	}

	switch {
	case apierrors.IsNotFound(err) && name != "":
		missing := core.NewNotFound(namespace, name)
		missing.Source = err
		return missing
	case apierrors.IsNotFound(err):
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "namespace "+namespace+" not found").
			WithCode(http.StatusNotFound).
			WithTextCode(core.WorkspaceErrorNotFound).
			WithMetadata(resourceMetadata(namespace, name))
	case apierrors.IsAlreadyExists(err):
		conflict := core.NewAlreadyExists(namespace, name)
		conflict.Source = err
		return conflict
	case apierrors.IsUnauthorized(err):
		return goerrors.Wrap(err, goerrors.CategoryAuth, "cluster rejected the bearer token").
			WithCode(http.StatusUnauthorized).
			WithTextCode(core.WorkspaceErrorUnauthorized)
	case apierrors.IsForbidden(err):
		return goerrors.Wrap(err, goerrors.CategoryAuthz, "cluster denied access").
			WithCode(http.StatusForbidden).
			WithTextCode(core.WorkspaceErrorForbidden).
			WithMetadata(resourceMetadata(namespace, name))
	case apierrors.IsTooManyRequests(err):
		return goerrors.Wrap(err, goerrors.CategoryRateLimit, "cluster throttled the request").
			WithCode(http.StatusTooManyRequests).
			WithTextCode(core.WorkspaceErrorRateLimited)
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "cluster rejected the request").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.WorkspaceErrorBadInput).
			WithMetadata(resourceMetadata(namespace, name))
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "kubernetes request failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.WorkspaceErrorUpstreamFailed).
		WithMetadata(resourceMetadata(namespace, name))
}

func resourceMetadata(namespace, name string) map[string]any {
	out := map[string]any{}
	if namespace != "" {
		out["namespace"] = namespace
	}
	if name != "" {
		out["name"] = name
	}
	return out
}
