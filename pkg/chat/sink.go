package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// WriterSink streams tokens to an io.Writer and ends each reply with a newline.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) StreamToken(_ context.Context, token string) error {
	_, err := io.WriteString(s.W, token)
	return err
}

func (s WriterSink) Send(_ context.Context, content string) error {
	if content == "" {
		return nil
	}
	_, err := fmt.Fprintln(s.W)
	return err
}

// BufferSink collects the reply in memory. Useful for request/response transports.
type BufferSink struct {
	Tokens []string
	Final  string
}

func (s *BufferSink) StreamToken(_ context.Context, token string) error {
	s.Tokens = append(s.Tokens, token)
	return nil
}

func (s *BufferSink) Send(_ context.Context, content string) error {
	s.Final = content
	return nil
}

// Streamed joins the tokens received so far.
func (s *BufferSink) Streamed() string {
	return strings.Join(s.Tokens, "")
}
