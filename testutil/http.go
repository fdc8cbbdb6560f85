/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const (
	contentTypeAppJSON   = "application/json"
	contentTypeTextPlain = "text/plain; charset=utf-8"
)

type wrappedErrorRespData struct {
	Error struct {
		Domain string `json:"domain"`
		Code   string `json:"code"`
	} `json:"error"`
}

// RequireErrorInRecorder asserts that passing httptest.ResponseRecorder contains JSON error
// ({"error": {"domain": "{domain}", "code": "{code}", ...}}).
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse asserts that passing http.Response contains JSON error.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

func requireErrorInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var errResp wrappedErrorRespData
	require.NoError(t, json.NewDecoder(body).Decode(&errResp))
	require.Equal(t, wantErrDomain, errResp.Error.Domain)
	require.Equal(t, wantErrCode, errResp.Error.Code)
}

// RequireStringJSONInResponse asserts that passing http.Response contains the json string.
func RequireStringJSONInResponse(t require.TestingT, resp *http.Response, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, resp.Header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, want, string(bodyBytes))
}

// RequireTextInRecorder asserts that passing httptest.ResponseRecorder contains plain text body with the status code.
func RequireTextInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantText string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, resp.Code)
	require.Equal(t, contentTypeTextPlain, resp.Header().Get("Content-Type"))
	require.Equal(t, wantText, resp.Body.String())
}
