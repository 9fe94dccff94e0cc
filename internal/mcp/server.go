package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/registry"
	"github.com/nickcecere/docrag/internal/store"
)

const (
	// MCPVersion is the protocol version we support.
	MCPVersion = "2024-11-05"

	// ServerName is the name of this MCP server.
	ServerName = "docrag"

	// maxLineSize bounds a single JSON-RPC message.
	maxLineSize = 4 << 20
)

// Server answers MCP requests against the registered indexes.
type Server struct {
	cfg      *config.Config
	stores   *store.Manager
	registry *registry.Registry
	indexer  *indexer.Indexer
	pipeline *rag.Pipeline
	version  string

	in  io.Reader
	out io.Writer
	mu  sync.Mutex // guards out

	initialized bool
}

// NewServer creates an MCP server reading requests from in and writing
// responses to out.
func NewServer(
	cfg *config.Config,
	stores *store.Manager,
	reg *registry.Registry,
	idx *indexer.Indexer,
	pipeline *rag.Pipeline,
	version string,
	in io.Reader,
	out io.Writer,
) *Server {
	return &Server{
		cfg:      cfg,
		stores:   stores,
		registry: reg,
		indexer:  idx,
		pipeline: pipeline,
		version:  version,
		in:       in,
		out:      out,
	}
}

// Run processes requests until the input ends or ctx is cancelled.
// Requests are handled one at a time in arrival order.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrorCodeParse, "Parse error", err.Error())
			continue
		}
		s.handleRequest(ctx, req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	log.Info("MCP server received EOF, shutting down")
	return nil
}

// handleRequest processes a single request.
func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", string(req.ID))

	if req.JSONRPC != "2.0" {
		if !req.IsNotification() {
			s.sendError(req.ID, ErrorCodeInvalidRequest, "Invalid request", "jsonrpc must be \"2.0\"")
		}
		return
	}

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		s.initialized = true
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		if !req.IsNotification() {
			s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		}
		return
	}

	if req.IsNotification() {
		return
	}

	var pe *paramsError
	switch {
	case errors.As(err, &pe):
		s.sendError(req.ID, ErrorCodeInvalidParams, "Invalid params", pe.Error())
	case err != nil:
		s.sendError(req.ID, ErrorCodeInternal, "Internal error", err.Error())
	default:
		s.sendResult(req.ID, result)
	}
}

// paramsError marks malformed request parameters.
type paramsError struct{ err error }

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &paramsError{err: err}
	}
	return nil
}

func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: s.version,
		},
	}, nil
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	log.Debug("Calling tool", "name", p.Name)

	tool, ok := tools[p.Name]
	if !ok {
		return errorResult(fmt.Sprintf("Unknown tool: %s", p.Name)), nil
	}
	return tool.call(s, ctx, p.Arguments), nil
}

func (s *Server) sendResult(id json.RawMessage, result any) {
	s.send(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(id json.RawMessage, code int, message, data string) {
	s.send(Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

// send writes one response line.
func (s *Server) send(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.out, string(data)); err != nil {
		log.Error("Failed to write response", "error", err)
	}
}

func absPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	return filepath.Abs(path)
}
