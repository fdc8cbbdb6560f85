/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
)

// makeRequestBodyRewindable prepares the request body for retries and returns a function that rewinds it.
// GetBody is used if available, then io.Seeker, and the body is buffered in memory as a last resort.
func makeRequestBodyRewindable(req *http.Request) (func(*http.Request) error, error) {
	if req.GetBody != nil {
		initialBody, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("get body before doing first request: %w", err)
		}
		req.Body = initialBody
		return func(r *http.Request) error {
			newBody, err := r.GetBody()
			if err != nil {
				return fmt.Errorf("get body for retry: %w", err)
			}
			r.Body = newBody
			return nil
		}, nil
	}

	if seeker, ok := req.Body.(io.ReadSeeker); ok {
		offset, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek request body before doing first request: %w", err)
		}
		req.Body = io.NopCloser(req.Body)
		return func(*http.Request) error {
			if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
				return fmt.Errorf("seek request body (offset=%d) for retry: %w", offset, err)
			}
			return nil
		}, nil
	}

	buffered, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read all request body before doing first request: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(buffered))
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(buffered))
		return nil
	}, nil
}

// drainResponseBody reads and discards the response body to allow connection reuse.
func drainResponseBody(resp *http.Response, logger log.FieldLogger) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close previous response body between retry attempts", log.Error(err))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Error("failed to discard previous response body between retry attempts", log.Error(err))
	}
}

func loggerFromContext(ctx context.Context) log.FieldLogger {
	return middleware.GetLoggerFromContext(ctx)
}
