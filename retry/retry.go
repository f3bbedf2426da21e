// Package retry wraps failsafe-go retry policies for outbound calls.
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Policy describes how often and how patiently a call is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns a Policy with attempts total attempts.
func DefaultPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func build[T any](p Policy, handle func(T, error) bool) retrypolicy.RetryPolicy[T] {
	p = p.normalize()
	builder := retrypolicy.NewBuilder[T]().
		WithMaxRetries(p.MaxAttempts-1).
		WithBackoff(p.BaseDelay, p.MaxDelay).
		WithJitterFactor(0.1).
		ReturnLastFailure()
	if handle != nil {
		builder = builder.HandleIf(handle)
	}
	return builder.Build()
}

// Do runs fn until it succeeds or the policy gives up. The last error is returned.
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	return failsafe.With(build[T](p, nil)).WithContext(ctx).Get(fn)
}

// ShouldRetryHTTP retries network errors, 5xx and 429 responses.
func ShouldRetryHTTP(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// ShouldRetryCreate is the handle for calls that create something remotely,
// such as a post. Only failures that prove the server did not act are
// retried: 429 responses and connections that were never established. A 5xx
// or a dropped connection may follow a successful create, so retrying those
// risks publishing twice.
func ShouldRetryCreate(resp *http.Response, err error) bool {
	if err != nil {
		var opErr *net.OpError
		return errors.As(err, &opErr) && opErr.Op == "dial"
	}
	return resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

// DoHTTP sends requests built by newReq through client under the policy,
// retrying per ShouldRetryHTTP.
func DoHTTP(ctx context.Context, p Policy, client *http.Client, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return DoHTTPIf(ctx, p, client, newReq, ShouldRetryHTTP)
}

// DoHTTPIf is DoHTTP with a caller supplied retry handle.
// newReq is called once per attempt so request bodies can be rebuilt.
// The final response is returned even when its status is retryable. Any
// response that is not returned has its body closed.
//
//nolint:bodyclose // the caller owns the returned response body
func DoHTTPIf(ctx context.Context, p Policy, client *http.Client, newReq func(ctx context.Context) (*http.Request, error), handle func(*http.Response, error) bool) (*http.Response, error) {
	if handle == nil {
		handle = ShouldRetryHTTP
	}
	policy := build[*http.Response](p, handle)
	var last *http.Response
	resp, err := failsafe.With(policy).WithContext(ctx).Get(func() (*http.Response, error) {
		if last != nil {
			last.Body.Close()
			last = nil
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil {
			last = resp
		}
		return resp, err
	})
	// Cancellation during backoff returns no response, leaving the previous
	// attempt's body open.
	if last != nil && last != resp {
		last.Body.Close()
	}
	return resp, err
}
