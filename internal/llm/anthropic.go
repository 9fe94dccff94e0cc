package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
)

const anthropicVersion = "2023-06-01"

// AnthropicService implements the LLM service using the Anthropic messages API.
type AnthropicService struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// anthropicStreamEvent is the payload of an SSE data line.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicService creates a new Anthropic LLM service. An empty baseURL
// uses the public API.
func NewAnthropicService(apiKey, model, baseURL string) (*AnthropicService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicService{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}, nil
}

// Complete generates a completion for the given messages.
func (s *AnthropicService) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	log.Debug("Requesting completion from Anthropic", "model", s.model)

	resp, err := s.post(ctx, messages, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no content in response")
	}
	return sb.String(), nil
}

// CompleteStream generates a streaming completion from the server-sent
// event stream.
func (s *AnthropicService) CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, <-chan error) {
	contentCh, errCh := streamChannels()

	go func() {
		defer close(errCh)
		defer close(contentCh)

		log.Debug("Streaming completion from Anthropic", "model", s.model)

		resp, err := s.post(ctx, messages, opts, true)
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data:")
			if !ok {
				continue
			}

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
				log.Debug("Skipping malformed stream event", "error", err)
				continue
			}

			switch event.Type {
			case "content_block_delta":
				if event.Delta == nil || event.Delta.Text == "" {
					continue
				}
				if !send(ctx, contentCh, event.Delta.Text) {
					errCh <- ctx.Err()
					return
				}
			case "error":
				msg := "unknown error"
				if event.Error != nil {
					msg = event.Error.Message
				}
				errCh <- fmt.Errorf("anthropic stream error: %s", msg)
				return
			case "message_stop":
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			errCh <- fmt.Errorf("failed to read stream: %w", err)
		}
	}()

	return contentCh, errCh
}

// Provider returns the provider name.
func (s *AnthropicService) Provider() Provider {
	return ProviderAnthropic
}

// ModelName returns the model name.
func (s *AnthropicService) ModelName() string {
	return s.model
}

func (s *AnthropicService) post(ctx context.Context, messages []Message, opts CompletionOptions, stream bool) (*http.Response, error) {
	// The system prompt travels outside the message list
	var system string
	var chat []anthropicMessage
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		chat = append(chat, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	header := http.Header{}
	header.Set("x-api-key", s.apiKey)
	header.Set("anthropic-version", anthropicVersion)

	return postJSON(ctx, s.client, "anthropic", s.baseURL+"/v1/messages", anthropicRequest{
		Model:       s.model,
		Messages:    chat,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}, header)
}
