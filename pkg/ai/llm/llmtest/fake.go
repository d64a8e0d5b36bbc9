// Package llmtest provides a scripted llm.LLM for tests.
package llmtest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/Abraxas-365/finai/pkg/ai/llm"
)

// Call is one recorded request
type Call struct {
	Messages []llm.Message
	Options  *llm.ChatOptions
}

// Handler produces the reply for a request
type Handler func(messages []llm.Message, opts *llm.ChatOptions) (string, error)

// Fake replies with Handler, or with Replies in order when Handler is nil.
// Once Replies is exhausted the last one is repeated. Streams split the reply
// on spaces, keeping the separators, so joining the chunks gives the reply.
type Fake struct {
	Handler Handler
	Replies []string
	Err     error

	mu    sync.Mutex
	calls []Call
	next  int
}

// NewFake returns a fake replying with replies in order
func NewFake(replies ...string) *Fake {
	return &Fake{Replies: replies}
}

// Calls returns a copy of the recorded requests
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) reply(messages []llm.Message, opts []llm.Option) (string, error) {
	options := llm.Apply(opts...)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Messages: append([]llm.Message(nil), messages...), Options: options})
	handler := f.Handler
	var scripted string
	if handler == nil && len(f.Replies) > 0 {
		i := min(f.next, len(f.Replies)-1)
		scripted = f.Replies[i]
		f.next++
	}
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	if handler != nil {
		return handler(messages, options)
	}
	return scripted, nil
}

func (f *Fake) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	text, err := f.reply(messages, opts)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Message: llm.NewAssistantMessage(text)}, nil
}

func (f *Fake) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := f.reply(messages, opts)
	if err != nil {
		return nil, err
	}
	return &stream{ctx: ctx, chunks: strings.SplitAfter(text, " ")}, nil
}

type stream struct {
	ctx    context.Context
	chunks []string
	pos    int
}

func (s *stream) Next() (llm.Message, error) {
	if err := s.ctx.Err(); err != nil {
		return llm.Message{}, err
	}
	if s.pos >= len(s.chunks) {
		return llm.Message{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return llm.NewAssistantMessage(chunk), nil
}

func (s *stream) Close() error { return nil }
