package document

import (
	"strings"
	"unicode/utf8"
)

// Splitter breaks chunk content into smaller overlapping pieces. It tries
// each separator in turn and only falls back to a finer one for pieces that
// are still too long.
type Splitter struct {
	opts SplitOptions
}

// NewSplitter creates a splitter, applying defaults for zero values.
func NewSplitter(opts SplitOptions) *Splitter {
	defaults := DefaultSplitOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if len(opts.Separators) == 0 {
		opts.Separators = defaults.Separators
	}
	return &Splitter{opts: opts}
}

// Split splits chunks into pieces of at most size characters, neighbours
// sharing overlap characters, using the default separators.
func Split(chunks []Chunk, size, overlap int) []Chunk {
	return NewSplitter(SplitOptions{ChunkSize: size, ChunkOverlap: overlap}).Split(chunks)
}

// Split splits every chunk's content and copies its metadata onto each piece.
// Order is preserved.
func (s *Splitter) Split(chunks []Chunk) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		for _, piece := range s.SplitText(c.Content) {
			out = append(out, Chunk{Content: piece, Metadata: c.Metadata.clone()})
		}
	}
	return out
}

// SplitText splits a single text.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.opts.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	// Pick the first separator present in the text
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var final []string
	var good []string
	for _, piece := range splitOn(text, separator) {
		if runeLen(piece) < s.opts.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, separator)...)
			good = nil
		}
		if len(finer) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, separator)...)
	}
	return final
}

// merge joins small pieces into chunks no longer than ChunkSize, carrying
// up to ChunkOverlap characters from the end of one chunk into the next.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var docs []string
	var current []string
	total := 0

	for _, p := range pieces {
		l := runeLen(p)
		if total+l+joinCost(len(current), sepLen) > s.opts.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.opts.ChunkOverlap ||
				(total+l+joinCost(len(current), sepLen) > s.opts.ChunkSize && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		current = append(current, p)
		total += l
		if len(current) > 1 {
			total += sepLen
		}
	}

	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinCost(n, sepLen int) int {
	if n > 0 {
		return sepLen
	}
	return 0
}

// splitOn splits text on separator, dropping empty pieces. The empty
// separator splits into individual characters.
func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
