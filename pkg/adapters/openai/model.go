// Package openai adapts OpenAI-compatible chat completion endpoints to ports.StreamingChatModel.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultEndpoint = "/chat/completions"
	defaultTimeout  = 120 * time.Second
	maxErrorBody    = 64 << 10
)

// ErrEmptyResponse is returned when the provider answers without any choice.
var ErrEmptyResponse = errors.New("provider response has no choices")

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float64
	// Timeout bounds a whole Invoke call and the wait for response headers
	// on a stream. A stream body is bounded only by ctx. Defaults to 120s.
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Adapter struct {
	apiKey      string
	model       string
	temperature *float64
	endpointURL string
	timeout     time.Duration
	httpClient  *http.Client
}

var _ ports.StreamingChatModel = (*Adapter)(nil)

// New validates cfg and builds an adapter. An API key is optional so local
// OpenAI-compatible servers can be used.
func New(cfg Config) (*Adapter, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("new model adapter: model is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = timeout
		httpClient = &http.Client{Transport: transport}
	}

	return &Adapter{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		endpointURL: strings.TrimRight(baseURL, "/") + defaultEndpoint,
		timeout:     timeout,
		httpClient:  httpClient,
	}, nil
}

// Invoke performs a non-streaming completion.
func (a *Adapter) Invoke(ctx context.Context, messages []domain.Message) (domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	response, err := a.do(ctx, messages, false)
	if err != nil {
		return domain.Message{}, err
	}
	defer response.Body.Close()

	var parsed chatCompletionResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return domain.Message{}, fmt.Errorf("provider response decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return domain.Message{}, ErrEmptyResponse
	}

	msg := parsed.Choices[0].Message
	return domain.Message{Role: domain.ParseRole(msg.Role), Content: msg.Content}, nil
}

// Stream performs a streaming completion, yielding one chunk per content delta.
func (a *Adapter) Stream(ctx context.Context, messages []domain.Message) iter.Seq2[domain.Chunk, error] {
	return func(yield func(domain.Chunk, error) bool) {
		response, err := a.do(ctx, messages, true)
		if err != nil {
			yield(domain.Chunk{}, err)
			return
		}
		defer response.Body.Close()

		for data, err := range events(response.Body) {
			if err != nil {
				yield(domain.Chunk{}, fmt.Errorf("provider stream read: %w", err))
				return
			}
			if data == "[DONE]" {
				return
			}

			var parsed chatCompletionChunk
			if err := json.Unmarshal([]byte(data), &parsed); err != nil {
				yield(domain.Chunk{}, fmt.Errorf("provider stream decode: %w", err))
				return
			}
			if len(parsed.Choices) == 0 {
				continue
			}

			choice := parsed.Choices[0]
			if choice.Delta.Content != "" {
				chunk := domain.Chunk{Message: domain.AssistantMessage(choice.Delta.Content)}
				if choice.FinishReason != "" {
					chunk.Metadata = map[string]any{"finish_reason": choice.FinishReason}
				}
				if !yield(chunk, nil) {
					return
				}
			}
		}
		if err := ctx.Err(); err != nil {
			yield(domain.Chunk{}, err)
		}
	}
}

func (a *Adapter) do(ctx context.Context, messages []domain.Message, streaming bool) (*http.Response, error) {
	payload := chatCompletionRequest{
		Model:       a.model,
		Messages:    make([]chatMessage, len(messages)),
		Stream:      streaming,
		Temperature: a.temperature,
	}
	for i, m := range messages {
		payload.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("provider request encode: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("provider request build: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	if streaming {
		request.Header.Set("Accept", "text/event-stream")
	}

	response, err := a.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("provider request execute: %w", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		defer response.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return nil, &StatusError{Code: response.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return response, nil
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider response status=%d body=%s", e.Code, e.Body)
}

// events yields the data payload of each server-sent event in r.
func events(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

		var data []string
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if len(data) > 0 {
					if !yield(strings.Join(data, "\n"), nil) {
						return
					}
					data = data[:0]
				}
				continue
			}
			if payload, ok := strings.CutPrefix(line, "data:"); ok {
				data = append(data, strings.TrimPrefix(payload, " "))
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
			return
		}
		if len(data) > 0 {
			yield(strings.Join(data, "\n"), nil)
		}
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta        chatMessage `json:"delta"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}
