package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/store"
)

type toolDef struct {
	Tool
	call func(s *Server, ctx context.Context, args json.RawMessage) *CallToolResult
}

var toolList = []toolDef{
	{
		Tool: Tool{
			Name:        "docrag_list_indexes",
			Description: "List the indexed document collections with their index ids, labels and source files.",
			InputSchema: JSONSchema{Type: "object"},
		},
		call: (*Server).toolListIndexes,
	},
	{
		Tool: Tool{
			Name:        "docrag_ask",
			Description: "Answer a question from an indexed document collection. The answer cites sources as [0], [1], ... which are listed after it.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"index_id": {Type: "string", Description: "Index id returned by docrag_index or docrag_list_indexes"},
					"question": {Type: "string", Description: "The question in natural language"},
					"k":        {Type: "number", Description: "Number of chunks to retrieve", Default: 4},
				},
				Required: []string{"index_id", "question"},
			},
		},
		call: (*Server).toolAsk,
	},
	{
		Tool: Tool{
			Name:        "docrag_search",
			Description: "Retrieve the chunks of an index most relevant to a query, without generating an answer.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"index_id": {Type: "string", Description: "Index id to search"},
					"query":    {Type: "string", Description: "The search query in natural language"},
					"k":        {Type: "number", Description: "Maximum number of chunks to return", Default: 4},
					"mode": {
						Type:        "string",
						Description: "similarity ranks by distance, mmr also penalizes redundant chunks",
						Default:     string(store.ModeSimilarity),
						Enum:        []string{string(store.ModeSimilarity), string(store.ModeMMR)},
					},
				},
				Required: []string{"index_id", "query"},
			},
		},
		call: (*Server).toolSearch,
	},
	{
		Tool: Tool{
			Name:        "docrag_index",
			Description: "Index a document or a directory of documents (PDF, DOCX, Markdown, text) and return its new index id.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"path":  {Type: "string", Description: "File or directory to index"},
					"label": {Type: "string", Description: "Label used in the store name", Default: indexer.DefaultLabel},
				},
				Required: []string{"path"},
			},
		},
		call: (*Server).toolIndex,
	},
}

var tools = func() map[string]toolDef {
	m := make(map[string]toolDef, len(toolList))
	for _, t := range toolList {
		m[t.Name] = t
	}
	return m
}()

func (s *Server) handleListTools() *ListToolsResult {
	out := make([]Tool, len(toolList))
	for i, t := range toolList {
		out[i] = t.Tool
	}
	return &ListToolsResult{Tools: out}
}

func (s *Server) toolListIndexes(ctx context.Context, _ json.RawMessage) *CallToolResult {
	indexes, err := s.registry.List()
	if err != nil {
		return errorResult(fmt.Sprintf("Error: failed to read registry: %v", err))
	}
	if len(indexes) == 0 {
		return textResult("No indexes registered.")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d indexes:\n", len(indexes))
	for _, ix := range indexes {
		fmt.Fprintf(&sb, "- %s", ix.ID)
		if label := ix.Meta[indexer.MetaLabel]; label != "" {
			fmt.Fprintf(&sb, " label=%s", label)
		}
		if name := ix.Meta[indexer.MetaFileName]; name != "" {
			fmt.Fprintf(&sb, " file=%s", name)
		}
		if chunks := ix.Meta[indexer.MetaChunks]; chunks != "" {
			fmt.Fprintf(&sb, " chunks=%s", chunks)
		}
		fmt.Fprintf(&sb, " created=%s\n", ix.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return textResult(sb.String())
}

type askArgs struct {
	IndexID  string `json:"index_id"`
	Question string `json:"question"`
	K        int    `json:"k"`
}

func (s *Server) toolAsk(ctx context.Context, raw json.RawMessage) *CallToolResult {
	var args askArgs
	if err := decodeParams(raw, &args); err != nil {
		return errorResult(fmt.Sprintf("Error: invalid arguments: %v", err))
	}
	if args.Question == "" {
		return errorResult("Error: question is required")
	}
	k := s.k(args.K)

	storeName, err := s.indexer.Resolve(args.IndexID)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: %v", err))
	}

	answer, err := s.pipeline.Answer(ctx, args.Question, storeName, k, true)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: could not answer: %v", err))
	}

	var sb strings.Builder
	sb.WriteString(answer.Answer)
	if len(answer.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for i, src := range answer.Sources {
			fmt.Fprintf(&sb, "[%d] %s\n", i, sourceRef(src))
		}
	}
	return textResult(sb.String())
}

type searchArgs struct {
	IndexID string `json:"index_id"`
	Query   string `json:"query"`
	K       int    `json:"k"`
	Mode    string `json:"mode"`
}

func (s *Server) toolSearch(ctx context.Context, raw json.RawMessage) *CallToolResult {
	var args searchArgs
	if err := decodeParams(raw, &args); err != nil {
		return errorResult(fmt.Sprintf("Error: invalid arguments: %v", err))
	}
	if args.Query == "" {
		return errorResult("Error: query is required")
	}
	mode, err := store.ParseMode(args.Mode)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: %v", err))
	}
	k := s.k(args.K)

	storeName, err := s.indexer.Resolve(args.IndexID)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: %v", err))
	}

	retriever, err := s.stores.Retriever(ctx, storeName, k, mode)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: could not load index: %v", err))
	}
	results, err := retriever.Retrieve(ctx, args.Query)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: search failed: %v", err))
	}
	if len(results) == 0 {
		return textResult("No results found.")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results:\n\n", len(results))
	for i, src := range rag.Sources(results) {
		fmt.Fprintf(&sb, "[%d] %s - %.1f%% match\n%s\n\n", i, sourceRef(src), results[i].Score*100, src.Snippet)
	}
	return textResult(sb.String())
}

type indexArgs struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

func (s *Server) toolIndex(ctx context.Context, raw json.RawMessage) *CallToolResult {
	var args indexArgs
	if err := decodeParams(raw, &args); err != nil {
		return errorResult(fmt.Sprintf("Error: invalid arguments: %v", err))
	}
	path, err := absPath(args.Path)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: %v", err))
	}

	res, err := s.indexer.Index(ctx, path, indexer.Options{Label: args.Label})
	if err != nil {
		return errorResult(fmt.Sprintf("Error: indexing failed: %v", err))
	}
	return textResult(fmt.Sprintf("Indexed %s as %s: %d documents, %d chunks", path, res.IndexID, res.Documents, res.Chunks))
}

// k applies the configured default to an unset result count.
func (s *Server) k(k int) int {
	if k == 0 {
		return s.cfg.Retrieval.DefaultK
	}
	return k
}

func sourceRef(src rag.Source) string {
	if src.Page != nil {
		return fmt.Sprintf("%s p.%d", src.Source, *src.Page)
	}
	return src.Source
}
