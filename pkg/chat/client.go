package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	"github.com/shitan-ai/shitan/internal/observability"
	"github.com/shitan-ai/shitan/pkg/conversation"
)

// Config configures the chat client.
type Config struct {
	// Provider selects the upstream backend: "qianfan" (OpenAI-compatible,
	// the default) or "anthropic".
	Provider string

	APIKey  string
	BaseURL string
	Model   string

	MaxTokens   int
	Temperature float64

	// RequestTimeout bounds one completion call; ProbeTimeout bounds the
	// construction-time connectivity check.
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "qianfan"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
}

// Client answers user messages through an upstream completion provider. All
// failure paths resolve to fixed user-facing strings; Ask never surfaces an
// error to its caller.
type Client struct {
	provider       Provider
	model          string
	maxTokens      int
	temperature    float64
	requestTimeout time.Duration
}

// NewClient builds a client and runs a one-time connectivity probe against the
// upstream. Construction fails when the key is missing or the probe does not
// succeed; the service then runs with chat disabled.
func NewClient(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("upstream API key is required")
	}

	var provider Provider
	switch cfg.Provider {
	case "qianfan", "openai":
		provider = newOpenAIProvider(cfg.APIKey, cfg.BaseURL)
	case "anthropic":
		provider = newAnthropicProvider(cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown upstream provider %q", cfg.Provider)
	}

	c := &Client{
		provider:       provider,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		requestTimeout: cfg.RequestTimeout,
	}

	if err := c.probe(cfg.ProbeTimeout); err != nil {
		return nil, fmt.Errorf("upstream connectivity check failed: %w", err)
	}

	log.Info().
		Str("provider", provider.Name()).
		Str("model", cfg.Model).
		Msg("Chat client initialized")

	return c, nil
}

// probe sends a trivial completion to verify the upstream answers at all.
func (c *Client) probe(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := c.provider.Complete(ctx, Request{
		Model:     c.model,
		Messages:  []Message{{Role: "user", Content: "你好"}},
		MaxTokens: 50,
	})
	return err
}

// Provider returns the name of the configured upstream backend.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Ask answers one user message given the trailing conversation window. The
// reply is always displayable: upstream failures are classified into fixed
// user-facing strings, and a successful reply passes through the formatter.
func (c *Client) Ask(ctx context.Context, userMsg string, history []conversation.Turn) string {
	userMsg = strings.TrimSpace(userMsg)
	if userMsg == "" {
		return ReplyEmptyInput
	}

	if len(history) > conversation.MaxTurns {
		history = history[len(history)-conversation.MaxTurns:]
	}
	messages := make([]Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, Message{Role: "user", Content: userMsg})

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	start := time.Now()
	response, err := c.provider.Complete(ctx, Request{
		Model:       c.model,
		System:      systemPrompt,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	observability.RecordUpstreamCall(c.provider.Name(), time.Since(start), err == nil)

	if err != nil {
		kind, reply := classifyError(err)
		observability.RecordUpstreamError(kind)
		log.Warn().
			Str("provider", c.provider.Name()).
			Str("kind", kind).
			Err(err).
			Msg("Upstream call failed")
		return reply
	}

	log.Debug().
		Int("history", len(history)).
		Int("reply_len", len(response.Content)).
		Msg("Upstream reply received")

	return Format(response.Content, userMsg)
}

// classifyError maps an upstream failure to a metric kind and the fixed
// user-facing reply for it. Single attempt; nothing here retries.
func classifyError(err error) (kind, reply string) {
	switch {
	case isTimeout(err):
		return "timeout", ReplyTimeout
	case isProxyError(err):
		return "proxy", ReplyProxyError
	case isConnectionError(err):
		return "connect", ReplyConnectError
	case isMalformedReply(err):
		return "bad_response", ReplyBadResponse
	case isTransportError(err):
		return "request", truncateError(err)
	default:
		return "internal", ReplyInternalError
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isProxyError(err error) bool {
	var urlErr *url.Error
	// The transport reports proxy dial failures with a "proxyconnect" scheme
	// in the wrapped error text.
	return errors.As(err, &urlErr) && strings.Contains(urlErr.Error(), "proxyconnect")
}

func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isMalformedReply(err error) bool {
	if errors.Is(err, errMalformedReply) {
		return true
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// isTransportError catches the remaining request-level failures: low-level URL
// errors and upstream HTTP status errors reported by the SDKs.
func isTransportError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return true
	}
	var anthropicErr *anthropic.Error
	return errors.As(err, &anthropicErr)
}

func truncateError(err error) string {
	msg := err.Error()
	if r := []rune(msg); len(r) > requestErrorMaxLen {
		msg = string(r[:requestErrorMaxLen])
	}
	return requestErrorPrefix + msg
}
