/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/restapi"
)

// RecoveryDefaultStackSize defines the default size of stack part which will be logged.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents an options for Recovery middleware.
type RecoveryOpts struct {
	StackSize int
}

type recoveryHandler struct {
	next      http.Handler
	errDomain string
	opts      RecoveryOpts
}

// Recovery is a middleware that recovers from panics, logs the panic value and a stacktrace,
// and responds with 500 and JSON error.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is a more configurable version of Recovery middleware.
func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &recoveryHandler{next: next, errDomain: errDomain, opts: opts}
	}
}

func (h *recoveryHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		logger := GetLoggerFromContext(r.Context())

		// http.ErrAbortHandler is raised by httputil.ReverseProxy when copying of the upstream response fails.
		// net/http suppresses its stack trace, so the panic is propagated as is.
		if p == http.ErrAbortHandler {
			if logger != nil {
				logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
			}
			panic(p)
		}

		if logger != nil {
			var logFields []log.Field
			if h.opts.StackSize > 0 {
				stack := make([]byte, h.opts.StackSize)
				stack = stack[:runtime.Stack(stack, false)]
				logFields = append(logFields, log.Bytes("stack", stack))
			}
			logger.Error(fmt.Sprintf("Panic: %+v", p), logFields...)
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
	}()

	h.next.ServeHTTP(rw, r)
}
