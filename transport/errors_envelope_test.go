package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-workspaces/core"
)

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.WorkspaceErrorUpstreamFailed {
		t.Fatalf("expected %q text code, got %q", core.WorkspaceErrorUpstreamFailed, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_NilClientReturnsRichError(t *testing.T) {
	var adapter *RESTAdapter
	_, err := adapter.Do(context.Background(), Request{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.WorkspaceErrorInternal || rich.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected envelope %q/%d", rich.TextCode, rich.Code)
	}
}

func TestStatusError_MapsStatusCodes(t *testing.T) {
	cases := []struct {
		status   int
		textCode string
		check    func(error) bool
	}{
		{http.StatusUnauthorized, core.WorkspaceErrorUnauthorized, core.IsUnauthorized},
		{http.StatusForbidden, core.WorkspaceErrorForbidden, core.IsUnauthorized},
		{http.StatusNotFound, core.WorkspaceErrorNotFound, core.IsNotFound},
		{http.StatusConflict, core.WorkspaceErrorAlreadyExists, nil},
		{http.StatusTooManyRequests, core.WorkspaceErrorRateLimited, nil},
		{http.StatusBadRequest, core.WorkspaceErrorBadInput, nil},
		{http.StatusServiceUnavailable, core.WorkspaceErrorUpstreamFailed, nil},
	}
	for _, tc := range cases {
		err := StatusError(Response{StatusCode: tc.status, Body: []byte(`{"error":"nope"}`)}, "token exchange")
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%d: expected go-errors envelope, got %T", tc.status, err)
		}
		if rich.TextCode != tc.textCode || rich.Code != tc.status {
			t.Fatalf("%d: unexpected envelope %q/%d", tc.status, rich.TextCode, rich.Code)
		}
		if tc.check != nil && !tc.check(err) {
			t.Fatalf("%d: predicate did not match", tc.status)
		}
	}
	if StatusError(Response{StatusCode: http.StatusCreated}, "x") != nil {
		t.Fatalf("expected nil for successful response")
	}
}
