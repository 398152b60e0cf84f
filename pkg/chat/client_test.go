package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shitan-ai/shitan/pkg/conversation"
)

// fakeProvider scripts the upstream for client tests.
type fakeProvider struct {
	reply string
	err   error
	last  Request
	calls int
}

func (f *fakeProvider) Complete(_ context.Context, req Request) (*Response, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Content: f.reply}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func newTestClient(p Provider) *Client {
	return &Client{
		provider:       p,
		model:          "ernie-3.5-8k",
		maxTokens:      1024,
		temperature:    0.7,
		requestTimeout: time.Second,
	}
}

func TestClient_AskEmptyMessageSkipsUpstream(t *testing.T) {
	fake := &fakeProvider{reply: "不该被调用"}
	c := newTestClient(fake)

	for _, msg := range []string{"", "   ", "\n\t"} {
		got := c.Ask(context.Background(), msg, nil)
		assert.Equal(t, ReplyEmptyInput, got)
	}
	assert.Zero(t, fake.calls)
}

func TestClient_AskBuildsMessageList(t *testing.T) {
	fake := &fakeProvider{reply: "回复"}
	c := newTestClient(fake)

	history := []conversation.Turn{
		{Role: "user", Content: "上一个问题", Timestamp: "12:00"},
		{Role: "assistant", Content: "上一个回答", Timestamp: "12:00"},
	}
	c.Ask(context.Background(), "新问题", history)

	require.Equal(t, 1, fake.calls)
	assert.Equal(t, systemPrompt, fake.last.System)
	require.Len(t, fake.last.Messages, 3)
	assert.Equal(t, Message{Role: "user", Content: "上一个问题"}, fake.last.Messages[0])
	assert.Equal(t, Message{Role: "assistant", Content: "上一个回答"}, fake.last.Messages[1])
	assert.Equal(t, Message{Role: "user", Content: "新问题"}, fake.last.Messages[2])
	assert.Equal(t, 1024, fake.last.MaxTokens)
	assert.InDelta(t, 0.7, fake.last.Temperature, 0.001)
}

func TestClient_AskTrimsOversizedHistory(t *testing.T) {
	fake := &fakeProvider{reply: "回复"}
	c := newTestClient(fake)

	var history []conversation.Turn
	for i := 0; i < 6; i++ {
		history = append(history,
			conversation.Turn{Role: "user", Content: fmt.Sprintf("问%d", i)},
			conversation.Turn{Role: "assistant", Content: fmt.Sprintf("答%d", i)},
		)
	}
	c.Ask(context.Background(), "新问题", history)

	// 8 trailing history turns plus the new user message.
	require.Len(t, fake.last.Messages, conversation.MaxTurns+1)
	assert.Equal(t, "问2", fake.last.Messages[0].Content)
}

func TestClient_AskFormatsSuccessfulReply(t *testing.T) {
	fake := &fakeProvider{reply: "人均200元很实惠"}
	c := newTestClient(fake)

	got := c.Ask(context.Background(), "人均预算200元", nil)
	assert.Equal(t, "**人均200元**很实惠", got)
}

func TestClient_AskTimeoutYieldsFixedMessage(t *testing.T) {
	fake := &fakeProvider{err: context.DeadlineExceeded}
	c := newTestClient(fake)

	got := c.Ask(context.Background(), "推荐点什么", nil)
	assert.Equal(t, ReplyTimeout, got)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  string
		wantReply string
	}{
		{
			"deadline exceeded",
			fmt.Errorf("request failed: %w", context.DeadlineExceeded),
			"timeout", ReplyTimeout,
		},
		{
			"net timeout",
			&url.Error{Op: "Post", URL: "https://qianfan.baidubce.com/v2/chat/completions", Err: &timeoutError{}},
			"timeout", ReplyTimeout,
		},
		{
			"proxy failure",
			&url.Error{Op: "Post", URL: "https://example.com", Err: errors.New(`proxyconnect tcp: dial tcp 127.0.0.1:8888: connect: connection refused`)},
			"proxy", ReplyProxyError,
		},
		{
			"connection refused",
			&url.Error{Op: "Post", URL: "https://example.com", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}},
			"connect", ReplyConnectError,
		},
		{
			"dns failure",
			&url.Error{Op: "Post", URL: "https://nope.invalid", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid"}},
			"connect", ReplyConnectError,
		},
		{
			"malformed body",
			fmt.Errorf("decoding response: %w", errMalformedReply),
			"bad_response", ReplyBadResponse,
		},
		{
			"unexpected internal",
			errors.New("something else entirely"),
			"internal", ReplyInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, reply := classifyError(tt.err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantReply, reply)
		})
	}
}

func TestClassifyError_GenericTransportTruncates(t *testing.T) {
	inner := errors.New("unexpected EOF while reading body and a very long trailing explanation that keeps going well past the one hundred character truncation boundary used for user display")
	err := &url.Error{Op: "Post", URL: "https://example.com", Err: inner}

	kind, reply := classifyError(err)
	assert.Equal(t, "request", kind)
	assert.True(t, len([]rune(reply)) <= len([]rune(requestErrorPrefix))+requestErrorMaxLen)
	assert.Contains(t, reply, requestErrorPrefix)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestNewClient_RejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(Config{APIKey: "key", Provider: "mystery"})
	assert.Error(t, err)
}

// timeoutError implements net.Error for the timeout classification test.
type timeoutError struct{}

func (*timeoutError) Error() string   { return "timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }
