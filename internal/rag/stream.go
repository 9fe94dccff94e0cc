package rag

import (
	"context"

	"github.com/nickcecere/docrag/internal/errs"
)

// Stream is a finite, non-restartable sequence of answer fragments.
//
//	for s.Next() {
//		fmt.Print(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Close aborts the model call; it is safe to call at any time and more than
// once.
type Stream struct {
	op    string
	store string

	content <-chan string
	errc    <-chan error
	cancel  context.CancelFunc
	sources []Source

	text   string
	err    error
	done   bool
	closed bool
}

// Next advances to the next fragment. It returns false when the answer is
// complete, the stream failed or the stream was closed.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	if frag, ok := <-s.content; ok {
		s.text = frag
		return true
	}

	s.text = ""
	s.done = true
	if err := <-s.errc; err != nil {
		s.err = errs.E(errs.KindGeneration, s.op, s.store, err)
	}
	s.cancel()
	return false
}

// Text returns the current fragment.
func (s *Stream) Text() string {
	return s.text
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Sources returns the chunks the answer is generated from, in rank order.
func (s *Stream) Sources() []Source {
	return s.sources
}

// Close stops generation and releases the model call.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.done = true
	s.text = ""
	return nil
}
