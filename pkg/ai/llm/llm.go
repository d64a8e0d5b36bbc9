package llm

import (
	"context"
	"errors"
	"io"
	"strings"
)

// LLM represents a generic large language model interface
type LLM interface {
	// Chat generates a response based on the conversation history
	Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error)

	// ChatStream streams the response tokens
	ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error)
}

// Response contains the model's response and additional metadata
type Response struct {
	Message Message
	Usage   Usage
}

// Stream represents a streaming response
type Stream interface {
	// Next returns the next delta of the stream.
	// Returns io.EOF when the stream is complete
	Next() (Message, error)

	// Close closes the stream
	Close() error
}

// Client represents a configured LLM client. Default options are applied
// before the per-call options of every request.
type Client struct {
	llm      LLM
	defaults []Option
}

// NewClient creates a new LLM client
func NewClient(llm LLM, defaults ...Option) *Client {
	return &Client{llm: llm, defaults: defaults}
}

func (c *Client) options(opts []Option) []Option {
	all := make([]Option, 0, len(c.defaults)+len(opts))
	all = append(all, c.defaults...)
	return append(all, opts...)
}

// Chat generates a response based on the conversation history
func (c *Client) Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error) {
	return c.llm.Chat(ctx, messages, c.options(opts)...)
}

// ChatStream streams the response tokens
func (c *Client) ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error) {
	return c.llm.ChatStream(ctx, messages, c.options(opts)...)
}

// Generate returns the text of a single completion. Transport failures and
// empty replies are reported as ErrModelUnavailable.
func (c *Client) Generate(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	resp, err := c.Chat(ctx, messages, opts...)
	if err != nil {
		return "", ErrRegistry.NewWithCause(ErrModelUnavailable, err)
	}

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", ErrRegistry.NewWithCause(ErrModelUnavailable, errEmptyReply)
	}
	return content, nil
}

// GenerateStream streams a completion, calling onChunk for every non-empty
// delta, and returns the full text once the stream is exhausted.
func (c *Client) GenerateStream(ctx context.Context, messages []Message, onChunk func(string) error, opts ...Option) (string, error) {
	stream, err := c.ChatStream(ctx, messages, opts...)
	if err != nil {
		return "", ErrRegistry.NewWithCause(ErrModelUnavailable, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		delta, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", ErrRegistry.NewWithCause(ErrModelUnavailable, err)
		}
		if delta.Content == "" {
			continue
		}

		sb.WriteString(delta.Content)
		if onChunk != nil {
			if err := onChunk(delta.Content); err != nil {
				return "", err
			}
		}
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrRegistry.NewWithCause(ErrModelUnavailable, errEmptyReply)
	}
	return sb.String(), nil
}
