package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
)

// OllamaService implements the LLM service using Ollama's chat API.
type OllamaService struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// NewOllamaService creates a new Ollama LLM service. Request deadlines come
// from the caller's context.
func NewOllamaService(baseURL, model string) (*OllamaService, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}

	return &OllamaService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}, nil
}

// Complete generates a completion for the given messages.
func (s *OllamaService) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	log.Debug("Requesting completion from Ollama", "model", s.model)

	resp, err := s.chat(ctx, messages, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}

	return result.Message.Content, nil
}

// CompleteStream generates a streaming completion from Ollama's
// newline-delimited JSON stream.
func (s *OllamaService) CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, <-chan error) {
	contentCh, errCh := streamChannels()

	go func() {
		defer close(errCh)
		defer close(contentCh)

		log.Debug("Streaming completion from Ollama", "model", s.model)

		resp, err := s.chat(ctx, messages, opts, true)
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				errCh <- fmt.Errorf("failed to decode chunk: %w", err)
				return
			}

			if chunk.Error != "" {
				errCh <- fmt.Errorf("ollama error: %s", chunk.Error)
				return
			}
			if chunk.Message.Content != "" && !send(ctx, contentCh, chunk.Message.Content) {
				errCh <- ctx.Err()
				return
			}
			if chunk.Done {
				return
			}
		}
	}()

	return contentCh, errCh
}

// Provider returns the provider name.
func (s *OllamaService) Provider() Provider {
	return ProviderOllama
}

// ModelName returns the model name.
func (s *OllamaService) ModelName() string {
	return s.model
}

// chat posts to /api/chat.
func (s *OllamaService) chat(ctx context.Context, messages []Message, opts CompletionOptions, stream bool) (*http.Response, error) {
	ollamaMessages := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		ollamaMessages[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}

	return postJSON(ctx, s.client, "ollama", s.baseURL+"/api/chat", ollamaChatRequest{
		Model:    s.model,
		Messages: ollamaMessages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}, nil)
}
