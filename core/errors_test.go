package core

import (
	stderrors "errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestWorkspaceErrorMapper_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		message  string
		textCode string
		category goerrors.Category
	}{
		{"workspace foo already exists", WorkspaceErrorAlreadyExists, goerrors.CategoryConflict},
		{"devworkspace not found", WorkspaceErrorNotFound, goerrors.CategoryNotFound},
		{"401 Unauthorized", WorkspaceErrorUnauthorized, goerrors.CategoryAuth},
		{"403 Forbidden", WorkspaceErrorForbidden, goerrors.CategoryAuthz},
		{"client rate limit exceeded", WorkspaceErrorRateLimited, goerrors.CategoryRateLimit},
		{"namespace is required", WorkspaceErrorBadInput, goerrors.CategoryBadInput},
	}
	for _, tc := range cases {
		mapped := workspaceErrorMapper(stderrors.New(tc.message))
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%q: expected text code %q, got %q", tc.message, tc.textCode, mapped.TextCode)
		}
		if mapped.Category != tc.category {
			t.Fatalf("%q: expected category %q, got %q", tc.message, tc.category, mapped.Category)
		}
		if mapped.Code == 0 {
			t.Fatalf("%q: expected http status code", tc.message)
		}
	}
}

func TestWorkspaceErrorMapper_PreservesStructuredErrors(t *testing.T) {
	original := NewCreationTimeout("ns-a", "ws-1", 5)
	mapped := workspaceErrorMapper(original)
	if mapped != original {
		t.Fatalf("expected structured error to pass through")
	}
	if mapped.Code != 504 || mapped.TextCode != WorkspaceErrorCreationTimeout {
		t.Fatalf("unexpected envelope %d/%q", mapped.Code, mapped.TextCode)
	}
}

func TestWorkspaceErrorMapper_FillsEnvelopeDefaults(t *testing.T) {
	mapped := workspaceErrorMapper(goerrors.New("upstream hiccup", goerrors.CategoryExternal))
	if mapped.Code != 502 {
		t.Fatalf("expected 502 for external failures, got %d", mapped.Code)
	}
	if mapped.TextCode != WorkspaceErrorUpstreamFailed {
		t.Fatalf("expected upstream text code, got %q", mapped.TextCode)
	}
	if workspaceErrorMapper(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestErrorPredicates(t *testing.T) {
	source := stderrors.New("boom")
	if !IsAuthExchangeFailure(NewAuthExchangeFailure(source)) {
		t.Fatalf("expected auth exchange failure predicate")
	}
	if !IsWatchFatal(NewWatchFatalError("ns-a", source)) || IsWatchFatal(NewWatchTransientError("ns-a", source)) {
		t.Fatalf("expected fatal predicate to distinguish transient failures")
	}
	if !IsNotFound(NewNotFound("ns-a", "ws-1")) || IsNotFound(source) {
		t.Fatalf("unexpected not found predicate result")
	}
	if !IsMalformedEvent(NewMalformedEvent("ns-a", "missing id")) {
		t.Fatalf("expected malformed predicate")
	}
	if !IsUnauthorized(stderrors.New("watch: Unauthorized")) {
		t.Fatalf("expected plain unauthorized message to be detected")
	}
	if IsUnauthorized(NewNotFound("ns-a", "ws-1")) {
		t.Fatalf("not found must not count as unauthorized")
	}
	wrapped := stderrors.Join(stderrors.New("context"), NewAuthExchangeFailure(source))
	if !IsAuthExchangeFailure(wrapped) {
		t.Fatalf("expected predicate to see through joined errors")
	}
}
