package chat

import (
	"context"
	"errors"
	"net/http"
)

// Message is one upstream chat message. History turns are mapped here with the
// timestamp dropped.
type Message struct {
	Role    string
	Content string
}

// Request carries everything a provider needs for one completion call.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is the completion text a provider extracted from the upstream reply.
type Response struct {
	Content string
}

// Provider is the seam between the chat client and a concrete upstream SDK.
type Provider interface {
	// Complete makes exactly one upstream call; retrying is the caller's
	// decision, and this service never retries.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name used in logs and metrics.
	Name() string
}

// errMalformedReply marks an upstream response whose body did not carry the
// expected completion shape.
var errMalformedReply = errors.New("malformed completion response")

// noProxyHTTPClient builds the transport used for every upstream call: a copy
// of the default transport with proxy resolution disabled, so local HTTP proxy
// environment variables never interfere with the call.
func noProxyHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	return &http.Client{Transport: transport}
}
