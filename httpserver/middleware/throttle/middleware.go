/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/internal/ratelimit"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/restapi"
)

// RejectionBody is a body of the response that is sent when the client exceeds its rate limit.
const RejectionBody = "Too many requests. Try again later."

const (
	// KeyLogFieldName is a logged field that contains the client key.
	KeyLogFieldName = "rate_limit_key"

	// OutcomeLogFieldName is the access log field holding the throttling decision.
	OutcomeLogFieldName = "throttle_outcome"
)

const userAgentLogFieldName = "user_agent"

// Params contains data that relates to the throttling of a single request
// and could be used for rejecting it or handling an occurred error.
type Params struct {
	ErrDomain           string
	Key                 string
	EstimatedRetryAfter time.Duration
	RetryAfterEnabled   bool
}

// GetKeyFunc is a function that returns the client key for the request.
// If bypass is true, the request is not throttled.
type GetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// OnRejectFunc is a function that is called for rejecting HTTP request when the client's rate limit is exceeded.
type OnRejectFunc func(rw http.ResponseWriter, r *http.Request, params Params, next http.Handler, logger log.FieldLogger)

// OnErrorFunc is a function that is called in case of any error that may occur during the throttling.
type OnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params Params, err error, next http.Handler, logger log.FieldLogger)

// MiddlewareOpts represents an options for the throttling middleware.
type MiddlewareOpts struct {
	// GetKey overrides the default client identification (header value or remote address).
	GetKey GetKeyFunc

	// OnReject is a callback called for rejecting HTTP request when the rate limit is exceeded.
	OnReject OnRejectFunc

	// OnRejectInDryRun is a callback called for rejected HTTP request in the dry-run mode.
	OnRejectInDryRun OnRejectFunc

	// OnError is a callback called in case of any error that may occur during the throttling.
	OnError OnErrorFunc

	// NowFunc is used as a clock source by the buckets. time.Now is used if nil.
	NowFunc func() time.Time
}

// Throttler admits or rejects HTTP requests depending on the per-client rate limits.
// Every client is identified by a key and has its own bucket.
type Throttler struct {
	errDomain     string
	processor     *ratelimit.RequestProcessor
	registry      *ratelimit.Registry
	getKey        GetKeyFunc
	excludedPaths map[string]struct{}
	dryRun        bool
	retryAfter    bool
	idleTTL       time.Duration
	cleanupEvery  time.Duration
	mc            MetricsCollector

	onReject         OnRejectFunc
	onRejectInDryRun OnRejectFunc
	onError          OnErrorFunc
}

// New creates a new Throttler.
func New(cfg *Config, errDomain string, mc MetricsCollector) (*Throttler, error) {
	return NewWithOpts(cfg, errDomain, mc, MiddlewareOpts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(cfg *Config, errDomain string, mc MetricsCollector, opts MiddlewareOpts) (*Throttler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mc == nil {
		mc = disabledMetrics{}
	}

	limiter, registry, err := makeLimiter(cfg, mc, opts.NowFunc)
	if err != nil {
		return nil, err
	}
	processor, err := ratelimit.NewRequestProcessor(limiter)
	if err != nil {
		return nil, fmt.Errorf("new rate limit request processor: %w", err)
	}

	getKey := opts.GetKey
	if getKey == nil {
		getKey = makeGetKeyFunc(cfg.ClientKey)
	}

	excludedPaths := make(map[string]struct{}, len(cfg.ExcludedPaths))
	for _, p := range cfg.ExcludedPaths {
		excludedPaths[p] = struct{}{}
	}

	t := &Throttler{
		errDomain:        errDomain,
		processor:        processor,
		registry:         registry,
		getKey:           getKey,
		excludedPaths:    excludedPaths,
		dryRun:           cfg.DryRun,
		retryAfter:       cfg.RetryAfter,
		idleTTL:          time.Duration(cfg.Registry.IdleTTL),
		cleanupEvery:     time.Duration(cfg.Registry.CleanupInterval),
		mc:               mc,
		onReject:         opts.OnReject,
		onRejectInDryRun: opts.OnRejectInDryRun,
		onError:          opts.OnError,
	}
	if t.onReject == nil {
		t.onReject = DefaultOnReject
	}
	if t.onRejectInDryRun == nil {
		t.onRejectInDryRun = DefaultOnRejectInDryRun
	}
	if t.onError == nil {
		t.onError = DefaultOnError
	}
	return t, nil
}

// Middleware is a middleware that throttles incoming HTTP requests based on the passed configuration.
func Middleware(cfg *Config, errDomain string, mc MetricsCollector) (func(next http.Handler) http.Handler, error) {
	t, err := New(cfg, errDomain, mc)
	if err != nil {
		return nil, err
	}
	return t.Middleware(), nil
}

// Middleware returns a middleware function that throttles requests.
func (t *Throttler) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &handler{next: next, throttler: t}
	}
}

// Clients returns the number of clients that are currently tracked.
// Returns -1 if the algorithm keeps clients outside the registry.
func (t *Throttler) Clients() int {
	if t.registry == nil {
		return -1
	}
	return t.registry.Len()
}

// EvictionEnabled reports whether idle clients are evicted.
func (t *Throttler) EvictionEnabled() bool {
	return t.registry != nil && t.idleTTL > 0
}

// EvictIdle forgets clients that were idle for the configured TTL and whose buckets are refilled.
// Returns the number of evicted clients.
func (t *Throttler) EvictIdle() int {
	if !t.EvictionEnabled() {
		return 0
	}
	return t.registry.EvictIdle(t.idleTTL)
}

func makeLimiter(
	cfg *Config, mc MetricsCollector, nowFn func() time.Time,
) (ratelimit.Limiter, *ratelimit.Registry, error) {
	maxRate := ratelimit.PerMinute(cfg.MaxRequestsPerMinute)

	newRegistry := func(factory ratelimit.BucketFactory) (*ratelimit.Registry, error) {
		reg, err := ratelimit.NewRegistryWithOpts(factory, ratelimit.RegistryOpts{
			Shards:   cfg.Registry.Shards,
			NowFunc:  nowFn,
			OnCreate: func(string) { mc.IncClients() },
			OnEvict:  func(string) { mc.DecClients() },
		})
		if err != nil {
			return nil, fmt.Errorf("new registry: %w", err)
		}
		return reg, nil
	}

	switch cfg.Alg {
	case "", AlgTokenBucket:
		var factory ratelimit.BucketFactory
		var err error
		bucketOpts := ratelimit.TokenBucketOpts{NowFunc: nowFn}
		switch cfg.Engine {
		case "", EngineNative:
			factory, err = ratelimit.TokenBucketFactory(maxRate, bucketOpts)
		case EngineXRate:
			factory, err = ratelimit.RateBucketFactory(maxRate, bucketOpts)
		default:
			return nil, nil, fmt.Errorf("unknown token bucket engine %q", cfg.Engine)
		}
		if err != nil {
			return nil, nil, err
		}
		reg, err := newRegistry(factory)
		if err != nil {
			return nil, nil, err
		}
		limiter, err := ratelimit.NewBucketLimiter(reg, maxRate)
		return limiter, reg, err

	case AlgSlidingWindow:
		factory, err := ratelimit.SlidingWindowBucketFactory(maxRate)
		if err != nil {
			return nil, nil, err
		}
		reg, err := newRegistry(factory)
		if err != nil {
			return nil, nil, err
		}
		limiter, err := ratelimit.NewSlidingWindowLimiter(reg, maxRate)
		return limiter, reg, err

	case AlgLeakyBucket:
		// Zero max keys makes the store unbounded, the same as the registry without eviction.
		limiter, err := ratelimit.NewLeakyBucketLimiter(maxRate, cfg.MaxRequestsPerMinute-1, 0)
		return limiter, nil, err
	}

	return nil, nil, fmt.Errorf("unknown rate limit alg %q", cfg.Alg)
}

func makeGetKeyFunc(cfg ClientKeyConfig) GetKeyFunc {
	return func(r *http.Request) (string, bool, error) {
		if cfg.TrustHeader {
			if headerVal := r.Header.Get(cfg.Header); headerVal != "" {
				return headerVal, false, nil
			}
		}
		return remoteAddrKey(r.RemoteAddr), false, nil
	}
}

// remoteAddrKey returns the host part of the remote address, or the address as is if it has no port.
func remoteAddrKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

type handler struct {
	next      http.Handler
	throttler *Throttler
}

func (h *handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if _, ok := h.throttler.excludedPaths[r.URL.Path]; ok {
		h.record(r, OutcomeExcluded)
		h.next.ServeHTTP(rw, r)
		return
	}
	requestHandler := &throttleRequestHandler{rw: rw, r: r, parent: h}
	_ = h.throttler.processor.ProcessRequest(requestHandler) // Error is always nil, as it is handled in the throttleRequestHandler methods.
}

// record counts the decision and attaches it to the access log line of the request.
func (h *handler) record(r *http.Request, outcome string) {
	h.throttler.mc.IncRequests(outcome)
	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.ExtendFields(log.String(OutcomeLogFieldName, outcome))
	}
}

// throttleRequestHandler implements ratelimit.RequestHandler for HTTP requests.
type throttleRequestHandler struct {
	rw     http.ResponseWriter
	r      *http.Request
	parent *handler
}

func (h *throttleRequestHandler) GetContext() context.Context {
	return h.r.Context()
}

func (h *throttleRequestHandler) GetKey() (key string, bypass bool, err error) {
	return h.parent.throttler.getKey(h.r)
}

func (h *throttleRequestHandler) Execute() error {
	h.parent.record(h.r, OutcomeAllowed)
	h.parent.next.ServeHTTP(h.rw, h.r)
	return nil
}

func (h *throttleRequestHandler) OnReject(params ratelimit.Params) error {
	t := h.parent.throttler
	logger := middleware.GetLoggerFromContext(h.r.Context())
	if t.dryRun {
		h.parent.record(h.r, OutcomeDryRun)
		t.onRejectInDryRun(h.rw, h.r, h.convertParams(params), h.parent.next, logger)
		return nil
	}
	h.parent.record(h.r, OutcomeRejected)
	t.onReject(h.rw, h.r, h.convertParams(params), h.parent.next, logger)
	return nil
}

func (h *throttleRequestHandler) OnError(params ratelimit.Params, err error) error {
	t := h.parent.throttler
	h.parent.record(h.r, OutcomeError)
	t.onError(h.rw, h.r, h.convertParams(params), err, h.parent.next, middleware.GetLoggerFromContext(h.r.Context()))
	return nil
}

func (h *throttleRequestHandler) convertParams(params ratelimit.Params) Params {
	return Params{
		ErrDomain:           h.parent.throttler.errDomain,
		Key:                 params.Key,
		EstimatedRetryAfter: params.EstimatedRetryAfter,
		RetryAfterEnabled:   h.parent.throttler.retryAfter,
	}
}

// DefaultOnReject responds with 429 status code and a plain text body.
func DefaultOnReject(rw http.ResponseWriter, r *http.Request, params Params, _ http.Handler, logger log.FieldLogger) {
	if logger != nil {
		logger.Warn("too many requests",
			log.String(KeyLogFieldName, params.Key),
			log.String(userAgentLogFieldName, r.UserAgent()),
		)
	}
	if params.RetryAfterEnabled {
		secs := int(math.Ceil(params.EstimatedRetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		rw.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusTooManyRequests)
	if _, err := io.WriteString(rw, RejectionBody); err != nil && logger != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

// DefaultOnRejectInDryRun logs the rejection and serves the request anyway.
func DefaultOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params Params, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests, serving will be continued because of dry run mode",
			log.String(KeyLogFieldName, params.Key),
			log.String(userAgentLogFieldName, r.UserAgent()),
		)
	}
	next.ServeHTTP(rw, r)
}

// DefaultOnError logs the error and responds with 500 status code.
func DefaultOnError(
	rw http.ResponseWriter, _ *http.Request, params Params, err error, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error(err.Error(), log.String(KeyLogFieldName, params.Key))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}
