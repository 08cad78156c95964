package httputil

import (
	"bytes"
	"io"
	"net/http"
)

// NewResponse builds an *http.Response with the given status code and body,
// suitable for seeding MockHTTPClient.Responses.
func NewResponse(statusCode int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// NewJSONResponse builds a response with a JSON content type.
func NewJSONResponse(statusCode int, body string) *http.Response {
	resp := NewResponse(statusCode, []byte(body))
	resp.Header.Set("Content-Type", "application/json")
	return resp
}
