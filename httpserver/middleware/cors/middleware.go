/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cors

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/log"
)

// RejectionBody is a body of the response that is sent when the cross-origin request is not allowed.
const RejectionBody = "Invalid CORS request"

// OriginLogFieldName is a logged field that contains the origin of the rejected request.
const OriginLogFieldName = "cors_origin"

const (
	headerOrigin                        = "Origin"
	headerVary                          = "Vary"
	headerAccessControlRequestMethod    = "Access-Control-Request-Method"
	headerAccessControlRequestHeaders   = "Access-Control-Request-Headers"
	headerAccessControlAllowOrigin      = "Access-Control-Allow-Origin"
	headerAccessControlAllowMethods     = "Access-Control-Allow-Methods"
	headerAccessControlAllowHeaders     = "Access-Control-Allow-Headers"
	headerAccessControlAllowCredentials = "Access-Control-Allow-Credentials"
	headerAccessControlExposeHeaders    = "Access-Control-Expose-Headers"
	headerAccessControlMaxAge           = "Access-Control-Max-Age"
)

// OnRejectFunc is a function that is called for rejecting a cross-origin request that is not allowed by the policy.
type OnRejectFunc func(rw http.ResponseWriter, r *http.Request, logger log.FieldLogger)

// MiddlewareOpts represents an options for the CORS middleware.
type MiddlewareOpts struct {
	OnReject OnRejectFunc
}

type policy struct {
	anyOrigin      bool
	originMatchers []func(string) bool
	methods        map[string]struct{}
	methodsValue   string
	anyHeader      bool
	headers        map[string]struct{}
	headersValue   string
	exposedValue   string
	credentials    bool
	maxAgeValue    string
}

type handler struct {
	next     http.Handler
	policy   *policy
	onReject OnRejectFunc
}

// Middleware is a middleware that applies the cross-origin resource sharing policy to all requests.
func Middleware(cfg *Config) (func(next http.Handler) http.Handler, error) {
	return MiddlewareWithOpts(cfg, MiddlewareOpts{})
}

// MiddlewareWithOpts is a more configurable version of Middleware.
func MiddlewareWithOpts(cfg *Config, opts MiddlewareOpts) (func(next http.Handler) http.Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := newPolicy(cfg)
	onReject := opts.OnReject
	if onReject == nil {
		onReject = DefaultOnReject
	}
	return func(next http.Handler) http.Handler {
		return &handler{next: next, policy: p, onReject: onReject}
	}, nil
}

func newPolicy(cfg *Config) *policy {
	p := &policy{
		methods:     make(map[string]struct{}, len(cfg.AllowedMethods)),
		headers:     make(map[string]struct{}, len(cfg.AllowedHeaders)),
		credentials: cfg.AllowCredentials,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == Wildcard {
			p.anyOrigin = true
			continue
		}
		p.originMatchers = append(p.originMatchers, glob.Compile(strings.ToLower(strings.TrimSpace(origin))))
	}

	methods := make([]string, 0, len(cfg.AllowedMethods))
	for _, m := range cfg.AllowedMethods {
		m = strings.ToUpper(m)
		if _, ok := p.methods[m]; ok {
			continue
		}
		p.methods[m] = struct{}{}
		methods = append(methods, m)
	}
	p.methodsValue = strings.Join(methods, ",")

	headers := make([]string, 0, len(cfg.AllowedHeaders))
	for _, h := range cfg.AllowedHeaders {
		if h == Wildcard {
			p.anyHeader = true
			continue
		}
		p.headers[strings.ToLower(h)] = struct{}{}
		headers = append(headers, h)
	}
	p.headersValue = strings.Join(headers, ",")

	p.exposedValue = strings.Join(cfg.ExposedHeaders, ",")
	if maxAge := time.Duration(cfg.MaxAge); maxAge > 0 {
		p.maxAgeValue = strconv.Itoa(int(maxAge.Seconds()))
	}
	return p
}

func (h *handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get(headerOrigin)
	if origin == "" || isSameOrigin(r, origin) {
		h.next.ServeHTTP(rw, r)
		return
	}

	respHeader := rw.Header()
	respHeader.Add(headerVary, headerOrigin)
	respHeader.Add(headerVary, headerAccessControlRequestMethod)
	respHeader.Add(headerVary, headerAccessControlRequestHeaders)

	preflight := r.Method == http.MethodOptions && r.Header.Get(headerAccessControlRequestMethod) != ""

	if !h.policy.allowsOrigin(origin) {
		h.reject(rw, r, origin)
		return
	}

	method := r.Method
	if preflight {
		method = r.Header.Get(headerAccessControlRequestMethod)
	}
	if _, ok := h.policy.methods[strings.ToUpper(method)]; !ok {
		h.reject(rw, r, origin)
		return
	}

	var allowedHeaders []string
	if preflight {
		requestedHeaders := parseHeaderList(r.Header.Values(headerAccessControlRequestHeaders))
		allowedHeaders = h.policy.filterHeaders(requestedHeaders)
		if len(requestedHeaders) != 0 && len(allowedHeaders) == 0 {
			h.reject(rw, r, origin)
			return
		}
	}

	respHeader.Set(headerAccessControlAllowOrigin, origin)
	if h.policy.credentials {
		respHeader.Set(headerAccessControlAllowCredentials, "true")
	}

	if !preflight {
		if h.policy.exposedValue != "" {
			respHeader.Set(headerAccessControlExposeHeaders, h.policy.exposedValue)
		}
		h.next.ServeHTTP(rw, r)
		return
	}

	respHeader.Set(headerAccessControlAllowMethods, h.policy.methodsValue)
	if len(allowedHeaders) != 0 {
		respHeader.Set(headerAccessControlAllowHeaders, strings.Join(allowedHeaders, ","))
	}
	if h.policy.maxAgeValue != "" {
		respHeader.Set(headerAccessControlMaxAge, h.policy.maxAgeValue)
	}
	rw.WriteHeader(http.StatusOK)
}

func (h *handler) reject(rw http.ResponseWriter, r *http.Request, origin string) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger != nil {
		logger = logger.With(log.String(OriginLogFieldName, origin))
	}
	h.onReject(rw, r, logger)
}

// DefaultOnReject responds with 403 status code and a plain text body.
func DefaultOnReject(rw http.ResponseWriter, r *http.Request, logger log.FieldLogger) {
	if logger != nil {
		logger.Warn("cross-origin request is rejected", log.String("method", r.Method))
	}
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusForbidden)
	if _, err := io.WriteString(rw, RejectionBody); err != nil && logger != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

func (p *policy) allowsOrigin(origin string) bool {
	if p.anyOrigin {
		return true
	}
	origin = strings.ToLower(origin)
	for _, match := range p.originMatchers {
		if match(origin) {
			return true
		}
	}
	return false
}

// filterHeaders returns the requested headers that are allowed by the policy.
func (p *policy) filterHeaders(requested []string) []string {
	if p.anyHeader {
		return requested
	}
	allowed := make([]string, 0, len(requested))
	for _, h := range requested {
		if _, ok := p.headers[strings.ToLower(h)]; ok {
			allowed = append(allowed, h)
		}
	}
	return allowed
}

func parseHeaderList(values []string) []string {
	var res []string
	for _, v := range values {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				res = append(res, h)
			}
		}
	}
	return res
}

// isSameOrigin reports whether the origin matches the scheme, host and port the request was sent to.
func isSameOrigin(r *http.Request, origin string) bool {
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if !strings.EqualFold(originURL.Scheme, scheme) {
		return false
	}
	reqHost, reqPort := splitHostPortWithDefault(r.Host, scheme)
	originHost, originPort := splitHostPortWithDefault(originURL.Host, scheme)
	return strings.EqualFold(reqHost, originHost) && reqPort == originPort
}

func splitHostPortWithDefault(hostport, scheme string) (host, port string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
		port = ""
	}
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return host, port
}
