package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/errs"
)

// collect drains a stream and returns the concatenated text and final error.
func collect(contentCh <-chan string, errCh <-chan error) (string, error) {
	var sb strings.Builder
	for s := range contentCh {
		sb.WriteString(s)
	}
	return sb.String(), <-errCh
}

func TestNewService(t *testing.T) {
	t.Run("ollama", func(t *testing.T) {
		cfg := config.DefaultConfig()
		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, svc.Provider())
		assert.Equal(t, config.DefaultOllamaLLMModel, svc.ModelName())
	})

	t.Run("openai", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.Provider = "openai"
		cfg.LLM.OpenAI.APIKey = "sk-test"
		cfg.LLM.OpenAI.Model = "gpt-4"
		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, svc.Provider())
		assert.Equal(t, "gpt-4", svc.ModelName())
	})

	t.Run("anthropic", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.Anthropic.APIKey = "sk-ant-test"
		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderAnthropic, svc.Provider())
		assert.Equal(t, config.DefaultAnthropicModel, svc.ModelName())
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.Provider = "unsupported"
		_, err := NewService(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})

	t.Run("missing keys", func(t *testing.T) {
		_, err := NewOpenAIService("", "gpt-4", "")
		assert.ErrorContains(t, err, "API key")
		_, err = NewAnthropicService("", "claude-3", "")
		assert.ErrorContains(t, err, "API key")
	})
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, config.DefaultMaxTokens, opts.MaxTokens)

	cfg.LLM.MaxTokens = 0
	assert.Equal(t, config.DefaultMaxTokens, OptionsFromConfig(cfg).MaxTokens)
}

// mockOllamaServer simulates Ollama's chat API. Streaming requests get one
// NDJSON line per fragment.
func mockOllamaServer(t *testing.T, fragments ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, 0.2, req.Options.Temperature)

		enc := json.NewEncoder(w)
		if !req.Stream {
			_ = enc.Encode(ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: strings.Join(fragments, "")},
				Done:    true,
			})
			return
		}
		for _, f := range fragments {
			_ = enc.Encode(ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: f}})
		}
		_ = enc.Encode(ollamaChatResponse{Done: true})
	}))
}

var testOpts = CompletionOptions{Temperature: 0.2, MaxTokens: 256}

func TestOllamaComplete(t *testing.T) {
	server := mockOllamaServer(t, "The sky ", "is blue [0].")
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "qwen3:8b")
	require.NoError(t, err)
	msgs := []Message{{Role: "user", Content: "What color is the sky?"}}

	answer, err := svc.Complete(context.Background(), msgs, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue [0].", answer)

	streamed, err := collect(svc.CompleteStream(context.Background(), msgs, testOpts))
	require.NoError(t, err)
	assert.Equal(t, answer, streamed)
}

func TestOllamaErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
		}))
		defer server.Close()

		svc, _ := NewOllamaService(server.URL, "qwen3:8b")
		_, err := svc.Complete(context.Background(), []Message{{Role: "user", Content: "q"}}, testOpts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")

		_, err = collect(svc.CompleteStream(context.Background(), []Message{{Role: "user", Content: "q"}}, testOpts))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("overloaded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		svc, _ := NewOllamaService(server.URL, "qwen3:8b")
		_, err := svc.Complete(context.Background(), []Message{{Role: "user", Content: "q"}}, testOpts)

		var se *errs.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "ollama", se.Provider)
		assert.True(t, se.Temporary())
	})

	t.Run("error mid-stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"partial"}}` + "\n"))
			_, _ = w.Write([]byte(`{"error":"out of memory"}` + "\n"))
		}))
		defer server.Close()

		svc, _ := NewOllamaService(server.URL, "qwen3:8b")
		text, err := collect(svc.CompleteStream(context.Background(), []Message{{Role: "user", Content: "q"}}, testOpts))
		assert.Equal(t, "partial", text)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of memory")
	})
}

func TestStreamStopsWhenAbandoned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		for i := 0; ; i++ {
			if err := enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: fmt.Sprint(i)}}); err != nil {
				return
			}
			select {
			case <-r.Context().Done():
				return
			default:
			}
		}
	}))
	defer server.Close()

	svc, _ := NewOllamaService(server.URL, "qwen3:8b")
	ctx, cancel := context.WithCancel(context.Background())
	contentCh, errCh := svc.CompleteStream(ctx, []Message{{Role: "user", Content: "q"}}, testOpts)

	<-contentCh
	cancel()

	done := make(chan struct{})
	go func() {
		for range contentCh {
		}
		<-errCh
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream goroutine did not stop after cancel")
	}
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, 0.2, req["temperature"])

		if stream, _ := req["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, f := range []string{"The sky ", "is blue."} {
				fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", f)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"The sky is blue."}}]}`))
	}))
	defer server.Close()

	svc, err := NewOpenAIService("sk-test", "gpt-4", server.URL)
	require.NoError(t, err)
	msgs := []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "sky?"}}

	answer, err := svc.Complete(context.Background(), msgs, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", answer)

	streamed, err := collect(svc.CompleteStream(context.Background(), msgs, testOpts))
	require.NoError(t, err)
	assert.Equal(t, answer, streamed)
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "be brief", req.System)
		assert.Len(t, req.Messages, 1)

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
			for _, f := range []string{"The sky ", "is blue."} {
				fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", f)
			}
			fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
			return
		}

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"The sky is blue."}]}`))
	}))
	defer server.Close()

	svc, err := NewAnthropicService("sk-ant-test", "claude-3", server.URL)
	require.NoError(t, err)
	msgs := []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "sky?"}}

	answer, err := svc.Complete(context.Background(), msgs, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", answer)

	streamed, err := collect(svc.CompleteStream(context.Background(), msgs, testOpts))
	require.NoError(t, err)
	assert.Equal(t, answer, streamed)
}

func TestAnthropicStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer server.Close()

	svc, _ := NewAnthropicService("sk-ant-test", "claude-3", server.URL)
	_, err := collect(svc.CompleteStream(context.Background(), []Message{{Role: "user", Content: "q"}}, testOpts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Overloaded")
}
