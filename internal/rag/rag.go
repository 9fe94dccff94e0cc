// Package rag answers questions from a vector store: it retrieves the most
// relevant chunks, lays them out as numbered context and asks a language
// model to answer from that context with bracketed citations.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/document"
	"github.com/nickcecere/docrag/internal/errs"
	"github.com/nickcecere/docrag/internal/llm"
	"github.com/nickcecere/docrag/internal/store"
)

// SnippetLength is the number of runes of chunk content kept in a Source.
const SnippetLength = 500

const promptTemplate = `You are a helpful assistant that answers strictly from the provided context.
If the answer is not in the context, say you don't know.

Question:
%s

Context:
%s

Respond concisely and include bracketed citations like [1], [2] corresponding
to the numbered context items when you quote or rely on them.`

// Retrievers hands out retrievers for stores. *store.Manager implements it.
type Retrievers interface {
	Retriever(ctx context.Context, name string, k int, mode store.Mode) (*store.Retriever, error)
}

// Source attributes part of an answer to a retrieved chunk.
type Source struct {
	Source  string `json:"source"`
	Page    *int   `json:"page"`
	Snippet string `json:"snippet"`
}

// Answer is a generated answer with its sources in retrieval rank order.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
}

// Options configures a Pipeline.
type Options struct {
	// Mode ranks retrieved chunks. Defaults to similarity.
	Mode store.Mode

	Completion        llm.CompletionOptions
	GenerationTimeout time.Duration
}

// OptionsFromConfig returns pipeline options from the llm and timeout
// settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:              store.ModeSimilarity,
		Completion:        llm.OptionsFromConfig(cfg),
		GenerationTimeout: cfg.Timeouts.Generation,
	}
}

// Pipeline answers queries against named stores.
type Pipeline struct {
	stores Retrievers
	model  llm.Service
	opts   Options
}

// NewPipeline creates a pipeline.
func NewPipeline(stores Retrievers, model llm.Service, opts Options) *Pipeline {
	if opts.Mode == "" {
		opts.Mode = store.ModeSimilarity
	}
	return &Pipeline{stores: stores, model: model, opts: opts}
}

// Answer retrieves the top k chunks of storeName and generates an answer
// from them. Sources are included when includeSources is set.
func (p *Pipeline) Answer(ctx context.Context, query, storeName string, k int, includeSources bool) (*Answer, error) {
	const op = "rag.answer"

	results, messages, err := p.prepare(ctx, op, query, storeName, k)
	if err != nil {
		return nil, err
	}

	gctx, cancel := p.generationContext(ctx)
	defer cancel()

	start := time.Now()
	text, err := p.model.Complete(gctx, messages, p.opts.Completion)
	if err != nil {
		return nil, errs.E(errs.KindGeneration, op, storeName, err)
	}
	log.Debug("Generated answer", "store", storeName, "chunks", len(results), "duration", time.Since(start))

	out := &Answer{Answer: text}
	if includeSources {
		out.Sources = Sources(results)
	}
	return out, nil
}

// StreamAnswer runs the same retrieval as Answer and streams the model
// output. Retrieval failures are returned directly; generation failures are
// reported by the stream's Err.
func (p *Pipeline) StreamAnswer(ctx context.Context, query, storeName string, k int) (*Stream, error) {
	const op = "rag.stream_answer"

	results, messages, err := p.prepare(ctx, op, query, storeName, k)
	if err != nil {
		return nil, err
	}

	gctx, cancel := p.generationContext(ctx)
	content, errc := p.model.CompleteStream(gctx, messages, p.opts.Completion)

	return &Stream{
		op:      op,
		store:   storeName,
		content: content,
		errc:    errc,
		cancel:  cancel,
		sources: Sources(results),
	}, nil
}

// prepare retrieves context for query and builds the prompt.
func (p *Pipeline) prepare(ctx context.Context, op, query, storeName string, k int) ([]store.Result, []llm.Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, errs.Errorf(errs.KindValidation, op, storeName, "query must not be empty")
	}

	r, err := p.stores.Retriever(ctx, storeName, k, p.opts.Mode)
	if err != nil {
		return nil, nil, retrievalError(op, storeName, err)
	}

	results, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, nil, retrievalError(op, storeName, err)
	}
	log.Debug("Retrieved context", "store", storeName, "k", k, "mode", p.opts.Mode, "chunks", len(results))

	messages := []llm.Message{
		{Role: "user", Content: Prompt(query, FormatContext(store.Chunks(results)))},
	}
	return results, messages, nil
}

func (p *Pipeline) generationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.GenerationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.GenerationTimeout)
}

// retrievalError classifies a failure to obtain context. Validation errors
// keep their kind.
func retrievalError(op, storeName string, err error) error {
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindRetrieval:
		return err
	}
	return errs.E(errs.KindRetrieval, op, storeName, err)
}

// Prompt fills the answer template.
func Prompt(question, contextBlock string) string {
	return fmt.Sprintf(promptTemplate, question, contextBlock)
}

// FormatContext lays chunks out as numbered context blocks:
//
//	[0] Source: guide.pdf . p.3
//	<content>
//
// Blocks are separated by a blank line. The index matches the position of
// the chunk's Source in the answer.
func FormatContext(chunks []document.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		label := fmt.Sprintf("[%d] Source: %s", i, sourceLabel(c.Metadata))
		if c.Metadata.Page != nil {
			label += fmt.Sprintf(" . p.%d", *c.Metadata.Page)
		}
		parts[i] = label + "\n" + c.Content
	}
	return strings.Join(parts, "\n\n")
}

func sourceLabel(md document.Metadata) string {
	switch {
	case md.Source != "":
		return md.Source
	case md.FileName != "":
		return md.FileName
	default:
		return "unknown"
	}
}

// Sources converts retrieval results into answer sources.
func Sources(results []store.Result) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		src := r.Metadata.Source
		if src == "" {
			src = "unknown"
		}
		out[i] = Source{
			Source:  src,
			Page:    r.Metadata.Page,
			Snippet: truncateRunes(r.Content, SnippetLength),
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
