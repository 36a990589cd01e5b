package core

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

type PollOptions struct {
	MaxAttempts int
	// Interval is the pause between attempts. Zero yields to the scheduler
	// without sleeping.
	Interval time.Duration
	// OnExhausted builds the error returned once every attempt failed.
	OnExhausted func(attempts int) error
}

// Poll calls lookup until ready reports true or MaxAttempts is used up.
// Not-found lookups consume an attempt; any other lookup error aborts.
func Poll[T any](
	ctx context.Context,
	lookup func(ctx context.Context) (T, error),
	ready func(T) bool,
	options PollOptions,
) (T, error) {
	var zero T
	if lookup == nil {
		return zero, fmt.Errorf("core: poll lookup is required")
	}
	if ready == nil {
		ready = func(T) bool { return true }
	}
	maxAttempts := options.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultCreationAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err := lookup(ctx)
		if err != nil && !IsNotFound(err) {
			return zero, err
		}
		if err == nil && ready(value) {
			return value, nil
		}
		if attempt == maxAttempts {
			break
		}
		if err := pauseBetweenAttempts(ctx, options.Interval); err != nil {
			return zero, err
		}
	}

	if options.OnExhausted != nil {
		return zero, options.OnExhausted(maxAttempts)
	}
	return zero, fmt.Errorf("core: condition not met after %d attempts", maxAttempts)
}

// AwaitReady polls for a created workspace until its status block exists.
func AwaitReady(
	ctx context.Context,
	namespace, name string,
	lookup func(ctx context.Context) (Resource, error),
	options PollOptions,
) (Resource, error) {
	options.OnExhausted = func(attempts int) error {
		return NewCreationTimeout(namespace, name, attempts)
	}
	return Poll(ctx, lookup, func(resource Resource) bool {
		return resource.HasStatus
	}, options)
}

func pauseBetweenAttempts(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	return waitWithContext(ctx, interval)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
