package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Ignorer defines the interface for pattern matching.
type Ignorer interface {
	MatchesPath(path string) bool
}

// combinedIgnorer wraps two ignorers.
type combinedIgnorer struct {
	file     *gitignore.GitIgnore
	patterns *gitignore.GitIgnore
}

// MatchesPath returns true if the path matches any ignore pattern.
func (c *combinedIgnorer) MatchesPath(path string) bool {
	return c.file.MatchesPath(path) || c.patterns.MatchesPath(path)
}

// Walker finds loadable documents under a directory.
type Walker struct {
	opts    WalkOptions
	ignorer Ignorer
}

// NewWalker creates a walker rooted at opts.Root. A .gitignore or
// .docragignore file in the root is honoured in addition to the patterns.
func NewWalker(opts WalkOptions) (*Walker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	w := &Walker{opts: opts}
	w.ignorer = w.buildIgnorer()
	return w, nil
}

func (w *Walker) buildIgnorer() Ignorer {
	patterns := gitignore.CompileIgnoreLines(w.opts.IgnorePatterns...)

	for _, name := range []string{".docragignore", ".gitignore"} {
		path := filepath.Join(w.opts.Root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		gi, err := gitignore.CompileIgnoreFile(path)
		if err != nil {
			log.Warn("Failed to parse ignore file", "path", path, "error", err)
			continue
		}
		return &combinedIgnorer{file: gi, patterns: patterns}
	}

	return patterns
}

// Walk calls fn for every supported document, in lexical order.
func (w *Walker) Walk(fn func(FileInfo) error) error {
	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		hidden := !w.opts.IncludeHidden && strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden || w.ignorer.MatchesPath(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if hidden || w.ignorer.MatchesPath(relPath) || !IsSupported(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Debug("Failed to get file info", "path", path, "error", err)
			return nil
		}
		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			log.Debug("Skipping large file", "path", relPath, "size", info.Size())
			return nil
		}

		return fn(FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
		})
	})
}
