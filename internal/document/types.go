// Package document turns raw files into chunks for indexing.
package document

// Metadata describes where a chunk came from.
type Metadata struct {
	// Source identifies the origin, normally the file path.
	Source string `json:"source"`

	// Page is the zero-based page index for paginated formats.
	Page *int `json:"page,omitempty"`

	FileName      string `json:"file_name,omitempty"`
	FileExtension string `json:"file_extension,omitempty"`

	// Extra carries caller-supplied labels.
	Extra map[string]string `json:"extra,omitempty"`
}

// Chunk is a unit of indexed text. Chunks are immutable once produced.
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// PageNumber returns a pointer to p, for building Metadata literals.
func PageNumber(p int) *int {
	return &p
}

// clone returns a copy of m that shares no mutable state with it.
func (m Metadata) clone() Metadata {
	out := m
	if m.Page != nil {
		out.Page = PageNumber(*m.Page)
	}
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// SplitOptions configures the splitter.
type SplitOptions struct {
	// ChunkSize is the target maximum chunk length in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by neighbouring chunks.
	ChunkOverlap int

	// Separators are tried in order; the empty string splits into characters.
	Separators []string
}

// DefaultSplitOptions returns sensible defaults for splitting.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{
		ChunkSize:    900,
		ChunkOverlap: 100,
		Separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// WalkOptions configures directory ingestion.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// MaxFileSize skips larger files (in bytes). Zero means no limit.
	MaxFileSize int64
}

// FileInfo represents a document file found by the walker.
type FileInfo struct {
	Path    string // Absolute path to the file
	RelPath string // Path relative to the root
	Size    int64  // File size in bytes
}
