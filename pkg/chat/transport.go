package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Transport opens one streaming exchange with the backend and returns the
// raw event-stream body. The caller owns closing it.
type Transport interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// TransportFunc adapts a function to the Transport interface; handy for
// replaying captured streams and for tests.
type TransportFunc func(ctx context.Context, req Request) (io.ReadCloser, error)

func (f TransportFunc) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

// HTTPTransport posts the dispatch request as JSON and streams the SSE
// response body back.
type HTTPTransport struct {
	URL    string
	Client *http.Client
	Header http.Header
}

func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{URL: url, Client: http.DefaultClient}
}

func (t *HTTPTransport) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "http transport: marshal request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "http transport: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, vs := range t.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "http transport: open stream")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, errors.Errorf("http transport: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
