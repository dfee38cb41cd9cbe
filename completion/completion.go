// Package completion defines the text-generation backend contract used by
// the broker stage, plus the retry and timeout wrappers applied to every
// call. The pipeline never talks to a backend directly - it always goes
// through a Completer.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Completer is the interface for text generation.
type Completer interface {
	Complete(ctx context.Context, model string, prompt string, options map[string]any) (string, error)
}

// Func adapts a function to the Completer interface.
type Func func(ctx context.Context, model string, prompt string, options map[string]any) (string, error)

// Complete implements Completer.
func (f Func) Complete(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	return f(ctx, model, prompt, options)
}

// PermanentError marks a failure that retrying cannot fix (bad request,
// unknown model). Wrap backend errors in this to stop the retry loop.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Retrying wraps a Completer with exponential backoff and a per-call
// timeout. Context cancellation and PermanentError stop the retry loop
// immediately.
type Retrying struct {
	inner      Completer
	timeout    time.Duration
	maxRetries uint64
}

// NewRetrying wraps inner with up to maxRetries retries and the given
// per-call timeout.
func NewRetrying(inner Completer, timeout time.Duration, maxRetries int) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{inner: inner, timeout: timeout, maxRetries: uint64(maxRetries)}
}

// Complete implements Completer.
func (r *Retrying) Complete(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	var result string
	operation := func() error {
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		out, err := r.inner.Complete(callCtx, model, prompt, options)
		if err != nil {
			var perm *PermanentError
			if errors.As(err, &perm) {
				return backoff.Permanent(perm.Err)
			}
			return err
		}
		result = out
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	return result, nil
}

// Echo is a stand-in Completer for runs without a generation backend
// attached. It returns the last line of the prompt unchanged, which keeps
// the pipeline flowing in dry runs and demos.
type Echo struct{}

// Complete implements Completer.
func (Echo) Complete(_ context.Context, _ string, prompt string, _ map[string]any) (string, error) {
	lines := strings.Split(strings.TrimRight(prompt, "\n"), "\n")
	return lines[len(lines)-1], nil
}
