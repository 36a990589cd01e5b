package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestAwaitReady_ExhaustsFiveAttempts(t *testing.T) {
	attempts := 0
	_, err := AwaitReady(context.Background(), "ns-a", "ws-1", func(context.Context) (Resource, error) {
		attempts++
		return Resource{Name: "ws-1"}, nil
	}, PollOptions{})
	if !IsCreationTimeout(err) {
		t.Fatalf("expected creation timeout, got %v", err)
	}
	if attempts != 5 {
		t.Fatalf("expected exactly 5 lookups, got %d", attempts)
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected structured error, got %T", err)
	}
	if richErr.Message != "was not able to find a workspace with name ws-1 in namespace ns-a" {
		t.Fatalf("unexpected message %q", richErr.Message)
	}
	if richErr.Metadata["attempts"] != 5 {
		t.Fatalf("expected attempts metadata, got %#v", richErr.Metadata)
	}
}

func TestAwaitReady_ReturnsOnceStatusPresent(t *testing.T) {
	attempts := 0
	resource, err := AwaitReady(context.Background(), "ns-a", "ws-1", func(context.Context) (Resource, error) {
		attempts++
		if attempts < 3 {
			return Resource{}, NewNotFound("ns-a", "ws-1")
		}
		return Resource{Name: "ws-1", HasStatus: true, Phase: "Starting"}, nil
	}, PollOptions{})
	if err != nil {
		t.Fatalf("await ready: %v", err)
	}
	if attempts != 3 || resource.Phase != "Starting" {
		t.Fatalf("expected ready on third attempt, got attempts=%d resource=%+v", attempts, resource)
	}
}

func TestPoll_AbortsOnNonNotFoundError(t *testing.T) {
	sentinel := errors.New("connection reset")
	attempts := 0
	_, err := Poll(context.Background(), func(context.Context) (int, error) {
		attempts++
		return 0, sentinel
	}, nil, PollOptions{MaxAttempts: 4})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected abort after first attempt, got %d", attempts)
	}
}

func TestPoll_HonoursContextBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := Poll(ctx, func(context.Context) (bool, error) {
		attempts++
		cancel()
		return false, nil
	}, func(ready bool) bool { return ready }, PollOptions{MaxAttempts: 5, Interval: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
}

func TestPoll_UsesExhaustionHook(t *testing.T) {
	sentinel := errors.New("gave up")
	var seen int
	_, err := Poll(context.Background(), func(context.Context) (string, error) {
		return "", nil
	}, func(string) bool { return false }, PollOptions{
		MaxAttempts: 2,
		OnExhausted: func(attempts int) error {
			seen = attempts
			return sentinel
		},
	})
	if !errors.Is(err, sentinel) || seen != 2 {
		t.Fatalf("expected exhaustion hook with 2 attempts, got err=%v seen=%d", err, seen)
	}
}
