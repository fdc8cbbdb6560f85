/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/retry"
)

// Default parameter values for RetryableRoundTripper.
const (
	DefaultMaxRetryAttempts                  = 10
	DefaultExponentialBackoffInitialInterval = time.Second
)

// UnlimitedRetryAttempts should be used as RetryableRoundTripperOpts.MaxRetryAttempts value
// when retries are stopped only by the backoff policy.
const UnlimitedRetryAttempts = -1

// RetryAttemptNumberHeader is an HTTP header name that contains the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckRetryFunc is called after every attempt and determines if the next retry attempt is needed.
type CheckRetryFunc func(ctx context.Context, req *http.Request, resp *http.Response, roundTripErr error) (bool, error)

// RetryableRoundTripper retries failed idempotent HTTP requests with the backoff.
type RetryableRoundTripper struct {
	Delegate http.RoundTripper
	Logger   log.FieldLogger

	// MaxRetryAttempts limits the number of retries, so there may be MaxRetryAttempts+1 requests in total.
	MaxRetryAttempts int

	CheckRetry CheckRetryFunc

	// IgnoreRetryAfter disables waiting for the time from the Retry-After response header.
	IgnoreRetryAfter bool

	BackoffPolicy retry.Policy
}

// RetryableRoundTripperOpts represents an options for RetryableRoundTripper.
type RetryableRoundTripperOpts struct {
	// Logger is used when there is no logger in the request context.
	Logger log.FieldLogger

	// MaxRetryAttempts is DefaultMaxRetryAttempts by default.
	MaxRetryAttempts int

	// CheckRetryFunc is DefaultCheckRetry by default.
	CheckRetryFunc CheckRetryFunc

	IgnoreRetryAfter bool

	// BackoffPolicy is DefaultBackoffPolicy by default.
	BackoffPolicy retry.Policy
}

// DefaultBackoffPolicy is an exponential backoff starting from one second.
var DefaultBackoffPolicy retry.Policy = retry.NewExponentialBackoffPolicy(DefaultExponentialBackoffInitialInterval, 0)

// NewRetryableRoundTripper returns a new instance of RetryableRoundTripper with default options.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts creates a new instance of RetryableRoundTripper with specified options.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	if opts.MaxRetryAttempts < 0 && opts.MaxRetryAttempts != UnlimitedRetryAttempts {
		return nil, fmt.Errorf("incorrect max retry attempts %d", opts.MaxRetryAttempts)
	}
	if opts.MaxRetryAttempts == 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.CheckRetryFunc == nil {
		opts.CheckRetryFunc = DefaultCheckRetry
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = DefaultBackoffPolicy
	}
	return &RetryableRoundTripper{
		Delegate:         delegate,
		Logger:           opts.Logger,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetryFunc,
		IgnoreRetryAfter: opts.IgnoreRetryAfter,
		BackoffPolicy:    opts.BackoffPolicy,
	}, nil
}

// RoundTrip sends the request and retries it while CheckRetry allows.
// The response of the last attempt is returned.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	logger := rt.logger(ctx)

	rewindReqBody := func(*http.Request) error { return nil }
	if req.Body != nil && req.Body != http.NoBody {
		originalBody := req.Body
		defer func() { _ = originalBody.Close() }() // Per RoundTripper contract.
		var err error
		if rewindReqBody, err = makeRequestBodyRewindable(req); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}
	}

	bf := rt.BackoffPolicy.NewBackOff()
	reqCloned := false

	var resp *http.Response
	var roundTripErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rewindReqBody(req); err != nil {
				logger.Error(fmt.Sprintf("failed to rewind request body, %d request(s) done", attempt), log.Error(err))
				return resp, roundTripErr
			}
			if resp != nil {
				drainResponseBody(resp, logger)
			}
			if !reqCloned {
				req, reqCloned = req.Clone(ctx), true // Per RoundTripper contract.
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		}

		resp, roundTripErr = rt.Delegate.RoundTrip(req)

		needRetry, checkErr := rt.CheckRetry(ctx, req, resp, roundTripErr)
		if checkErr != nil {
			logger.Error(fmt.Sprintf("failed to check if retry is needed, %d request(s) done", attempt+1),
				log.Error(checkErr))
			return resp, roundTripErr
		}
		if !needRetry {
			return resp, roundTripErr
		}

		if rt.MaxRetryAttempts > 0 && attempt >= rt.MaxRetryAttempts {
			logger.Warnf("max retry attempts exceeded (%d), %d request(s) done", rt.MaxRetryAttempts, attempt+1)
			return resp, roundTripErr
		}
		waitTime, ok := rt.nextWaitTime(bf, resp)
		if !ok {
			return resp, roundTripErr
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warnf("context is done (%v) while waiting for the next retry attempt, %d request(s) done",
				ctx.Err(), attempt+1)
			return resp, roundTripErr
		case <-timer.C:
		}
	}
}

func (rt *RetryableRoundTripper) nextWaitTime(bf backoff.BackOff, resp *http.Response) (time.Duration, bool) {
	if resp != nil && !rt.IgnoreRetryAfter {
		if retryAfter, ok := parseRetryAfter(resp); ok {
			return retryAfter, true
		}
	}
	waitTime := bf.NextBackOff()
	return waitTime, waitTime != backoff.Stop
}

func (rt *RetryableRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if logger := loggerFromContext(ctx); logger != nil {
		return logger
	}
	return rt.Logger
}

// RetryableRoundTripperError is returned when the request cannot be prepared for retrying.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return fmt.Sprintf("retryable round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry retries idempotent requests (GET, HEAD, OPTIONS) on temporary transport errors,
// 429 and 5xx responses.
func DefaultCheckRetry(
	ctx context.Context, req *http.Request, resp *http.Response, roundTripErr error,
) (needRetry bool, err error) {
	if ctx.Err() != nil {
		return false, nil
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
	default:
		return false, nil
	}
	if roundTripErr != nil {
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("both response and round trip error are nil")
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError, nil
}

// CheckErrorIsTemporary checks if the transport error may disappear on the next attempt.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var terr interface{ Temporary() bool }
	if errors.As(err, &terr) && terr.Temporary() {
		return true
	}
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}

func parseRetryAfter(resp *http.Response) (time.Duration, bool) {
	val := resp.Header.Get("Retry-After")
	if val == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(val); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
