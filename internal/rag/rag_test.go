package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/document"
	"github.com/nickcecere/docrag/internal/embeddings/embeddingstest"
	"github.com/nickcecere/docrag/internal/errs"
	"github.com/nickcecere/docrag/internal/llm/llmtest"
	"github.com/nickcecere/docrag/internal/store"
)

func setupPipeline(t *testing.T, model *llmtest.Service) (*Pipeline, *store.Manager) {
	t.Helper()
	m, err := store.NewManager(t.TempDir(), embeddingstest.New(384), store.Options{})
	require.NoError(t, err)

	_, err = m.Create(context.Background(), []document.Chunk{
		{Content: "The sky is blue.", Metadata: document.Metadata{Source: "sky.txt", FileName: "sky.txt"}},
		{Content: "Grass is green.", Metadata: document.Metadata{Source: "grass.pdf", FileName: "grass.pdf", Page: document.PageNumber(2)}},
	}, "demo")
	require.NoError(t, err)

	return NewPipeline(m, model, OptionsFromConfig(config.DefaultConfig())), m
}

func TestFormatContext(t *testing.T) {
	chunks := []document.Chunk{
		{Content: "c0", Metadata: document.Metadata{Source: "a.txt"}},
		{Content: "c1", Metadata: document.Metadata{Source: "b.pdf", Page: document.PageNumber(0)}},
		{Content: "c2", Metadata: document.Metadata{FileName: "c.docx"}},
		{Content: "c3"},
	}

	want := "[0] Source: a.txt\nc0\n\n" +
		"[1] Source: b.pdf . p.0\nc1\n\n" +
		"[2] Source: c.docx\nc2\n\n" +
		"[3] Source: unknown\nc3"
	assert.Equal(t, want, FormatContext(chunks))
	assert.Equal(t, "[0] Source: a.txt\nc0\n\n[1] Source: b.pdf . p.0\nc1", FormatContext(chunks[:2]))
	assert.Empty(t, FormatContext(nil))
}

func TestPrompt(t *testing.T) {
	p := Prompt("what color is the sky", "[0] Source: a.txt\nblue")
	assert.True(t, strings.HasPrefix(p, "You are a helpful assistant that answers strictly from the provided context.\n"))
	assert.Contains(t, p, "Question:\nwhat color is the sky\n\nContext:\n[0] Source: a.txt\nblue\n\n")
	assert.Contains(t, p, "bracketed citations like [1], [2]")
}

func TestSources(t *testing.T) {
	long := strings.Repeat("é", SnippetLength+100)
	sources := Sources([]store.Result{
		{Chunk: document.Chunk{Content: long, Metadata: document.Metadata{Source: "a.pdf", Page: document.PageNumber(4)}}},
		{Chunk: document.Chunk{Content: "short", Metadata: document.Metadata{FileName: "b.txt"}}},
	})

	require.Len(t, sources, 2)
	assert.Equal(t, "a.pdf", sources[0].Source)
	require.NotNil(t, sources[0].Page)
	assert.Equal(t, 4, *sources[0].Page)
	assert.Equal(t, strings.Repeat("é", SnippetLength), sources[0].Snippet)

	assert.Equal(t, "unknown", sources[1].Source)
	assert.Nil(t, sources[1].Page)
	assert.Equal(t, "short", sources[1].Snippet)
}

func TestAnswer(t *testing.T) {
	model := llmtest.New("The sky is blue ", "[0].")
	p, _ := setupPipeline(t, model)

	out, err := p.Answer(context.Background(), "what color is the sky", "demo", 1, true)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue [0].", out.Answer)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, Source{Source: "sky.txt", Snippet: "The sky is blue."}, out.Sources[0])

	prompts := model.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Question:\nwhat color is the sky\n")
	assert.Contains(t, prompts[0], "Context:\n[0] Source: sky.txt\nThe sky is blue.\n")
	assert.NotContains(t, prompts[0], "Grass")

	opts := model.Options()
	require.Len(t, opts, 1)
	assert.Equal(t, 0.2, opts[0].Temperature)
}

func TestAnswerWithoutSources(t *testing.T) {
	p, _ := setupPipeline(t, llmtest.New("ok"))

	out, err := p.Answer(context.Background(), "grass", "demo", 2, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Answer)
	assert.Nil(t, out.Sources)
}

func TestAnswerErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing store", func(t *testing.T) {
		p, _ := setupPipeline(t, llmtest.New("unused"))
		_, err := p.Answer(ctx, "sky", "nope", 4, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrRetrieval)
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("empty query", func(t *testing.T) {
		p, _ := setupPipeline(t, llmtest.New("unused"))
		_, err := p.Answer(ctx, "  ", "demo", 4, true)
		assert.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("invalid k", func(t *testing.T) {
		p, _ := setupPipeline(t, llmtest.New("unused"))
		_, err := p.Answer(ctx, "sky", "demo", 0, true)
		assert.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("model failure", func(t *testing.T) {
		model := llmtest.New()
		model.Fail(errors.New("model offline"))
		p, m := setupPipeline(t, model)

		_, err := p.Answer(ctx, "sky", "demo", 4, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrGeneration)
		assert.Contains(t, err.Error(), "model offline")
		assert.False(t, errs.IsRetryable(err))

		// The retriever stays cached and usable
		assert.Equal(t, 1, m.CachedRetrievers())
		model.Fail(nil)
		model.Reply("recovered")
		out, err := p.Answer(ctx, "sky", "demo", 4, false)
		require.NoError(t, err)
		assert.Equal(t, "recovered", out.Answer)
	})

	t.Run("model timeout is retryable", func(t *testing.T) {
		model := llmtest.New()
		model.Fail(context.DeadlineExceeded)
		p, _ := setupPipeline(t, model)

		_, err := p.Answer(ctx, "sky", "demo", 4, true)
		assert.ErrorIs(t, err, errs.ErrGeneration)
		assert.True(t, errs.IsRetryable(err))
	})
}

func drain(t *testing.T, s *Stream) (string, error) {
	t.Helper()
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Text())
	}
	return sb.String(), s.Err()
}

func TestStreamMatchesAnswer(t *testing.T) {
	model := llmtest.New("The sky ", "is blue", " [0].")
	p, _ := setupPipeline(t, model)
	ctx := context.Background()

	s, err := p.StreamAnswer(ctx, "what color is the sky", "demo", 2)
	require.NoError(t, err)
	defer s.Close()

	streamed, err := drain(t, s)
	require.NoError(t, err)

	out, err := p.Answer(ctx, "what color is the sky", "demo", 2, true)
	require.NoError(t, err)
	assert.Equal(t, out.Answer, streamed)
	assert.Equal(t, out.Sources, s.Sources())

	prompts := model.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, prompts[1], prompts[0])

	// Finished streams stay finished
	assert.False(t, s.Next())
}

func TestStreamErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing store fails before streaming", func(t *testing.T) {
		p, _ := setupPipeline(t, llmtest.New("unused"))
		s, err := p.StreamAnswer(ctx, "sky", "nope", 4)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, errs.ErrRetrieval)
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("failure mid-stream", func(t *testing.T) {
		model := llmtest.New("partial")
		model.FailStream(errors.New("connection reset"))
		p, _ := setupPipeline(t, model)

		s, err := p.StreamAnswer(ctx, "sky", "demo", 4)
		require.NoError(t, err)
		defer s.Close()

		text, err := drain(t, s)
		assert.Equal(t, "partial", text)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrGeneration)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("model refuses", func(t *testing.T) {
		model := llmtest.New()
		model.Fail(errors.New("bad request"))
		p, _ := setupPipeline(t, model)

		s, err := p.StreamAnswer(ctx, "sky", "demo", 4)
		require.NoError(t, err)
		defer s.Close()

		text, err := drain(t, s)
		assert.Empty(t, text)
		assert.ErrorIs(t, err, errs.ErrGeneration)
	})
}

func TestStreamClose(t *testing.T) {
	model := llmtest.New("one", "two", "three")
	p, _ := setupPipeline(t, model)

	s, err := p.StreamAnswer(context.Background(), "sky", "demo", 4)
	require.NoError(t, err)

	require.True(t, s.Next())
	assert.Equal(t, "one", s.Text())

	require.NoError(t, s.Close())
	assert.False(t, s.Next())
	assert.Empty(t, s.Text())
	assert.NoError(t, s.Err())
	assert.NoError(t, s.Close())
}

func TestStreamCancelledContext(t *testing.T) {
	model := llmtest.New("one", "two")
	p, _ := setupPipeline(t, model)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.StreamAnswer(ctx, "sky", "demo", 4)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Next())
	cancel()

	_, err = drain(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.ErrorIs(t, err, context.Canceled)
}
