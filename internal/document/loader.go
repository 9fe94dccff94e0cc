package document

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/errs"
)

// SupportedExtensions lists the file types Load understands.
var SupportedExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// IsSupported reports whether the extension of path can be loaded.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

// Load reads the file at path and returns its text segments in order.
// PDFs yield one segment per page; other formats yield a single segment.
func Load(path string) ([]Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupported(path) {
		return nil, errs.Errorf(errs.KindUnsupportedFormat, "document.load", path, "unsupported file type: %q", ext)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.E(errs.KindNotFound, "document.load", path, err)
		}
		return nil, errs.E(errs.KindStorage, "document.load", path, err)
	}

	base := Metadata{
		Source:        path,
		FileName:      filepath.Base(path),
		FileExtension: ext,
	}

	var segments []Chunk
	switch ext {
	case ".pdf":
		pages, err := extractPDF(content)
		if err != nil {
			return nil, errs.E(errs.KindUnsupportedFormat, "document.load", path, err)
		}
		for i, text := range pages {
			meta := base.clone()
			meta.Page = PageNumber(i)
			segments = append(segments, Chunk{Content: text, Metadata: meta})
		}
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return nil, errs.E(errs.KindUnsupportedFormat, "document.load", path, err)
		}
		segments = append(segments, Chunk{Content: text, Metadata: base})
	default:
		segments = append(segments, Chunk{Content: extractPlain(content), Metadata: base})
	}

	log.Debug("Loaded document", "path", path, "segments", len(segments))
	return segments, nil
}

// extractPlain returns content as a string, replacing invalid UTF-8.
func extractPlain(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�")
	}
	return string(content)
}
