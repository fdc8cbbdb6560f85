/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"net"
	"net/http"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
	"github.com/acronis/go-throttlegate/restapi"
)

// EchoResponseData is a body of the echo handler response.
type EchoResponseData struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Client string `json:"client"`
}

// EchoHandler answers every admitted request with its method, path and client address.
// It's used when no upstream is configured.
type EchoHandler struct {
	clientHeader string
}

// NewEchoHandler creates a new EchoHandler.
// The client is taken from the clientHeader value if it's set, otherwise from the remote address.
func NewEchoHandler(clientHeader string) *EchoHandler {
	return &EchoHandler{clientHeader: clientHeader}
}

func (h *EchoHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	respData := EchoResponseData{Method: r.Method, Path: r.URL.Path, Client: h.client(r)}
	restapi.RespondJSON(rw, respData, middleware.GetLoggerFromContext(r.Context()))
}

func (h *EchoHandler) client(r *http.Request) string {
	if h.clientHeader != "" {
		if v := r.Header.Get(h.clientHeader); v != "" {
			return v
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
