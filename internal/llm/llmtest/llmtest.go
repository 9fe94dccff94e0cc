// Package llmtest provides a scripted language model for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/nickcecere/docrag/internal/llm"
)

// Service replies with its fragments, joined for Complete and one per
// message for CompleteStream. It is safe for concurrent use.
type Service struct {
	mu        sync.Mutex
	fragments []string
	err       error
	streamErr error
	messages  [][]llm.Message
	options   []llm.CompletionOptions
}

// New returns a Service that answers with the given fragments.
func New(fragments ...string) *Service {
	return &Service{fragments: fragments}
}

// Reply replaces the scripted answer.
func (s *Service) Reply(fragments ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments = fragments
}

// Fail makes every call fail with err before producing output. A nil err
// clears the failure.
func (s *Service) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// FailStream makes streams end with err after all fragments.
func (s *Service) FailStream(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamErr = err
}

// record logs a call and returns the script to play.
func (s *Service) record(messages []llm.Message, opts llm.CompletionOptions) (fragments []string, err, streamErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages)
	s.options = append(s.options, opts)
	return append([]string(nil), s.fragments...), s.err, s.streamErr
}

// Prompts returns the user message content of every call so far.
func (s *Service) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.Role == "user" {
				out = append(out, m.Content)
			}
		}
	}
	return out
}

// Options returns the completion options of every call so far.
func (s *Service) Options() []llm.CompletionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.CompletionOptions(nil), s.options...)
}

func (s *Service) Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error) {
	fragments, failure, _ := s.record(messages, opts)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if failure != nil {
		return "", failure
	}
	return strings.Join(fragments, ""), nil
}

func (s *Service) CompleteStream(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (<-chan string, <-chan error) {
	fragments, failure, streamErr := s.record(messages, opts)
	contentCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(contentCh)

		if failure != nil {
			errCh <- failure
			return
		}
		for _, f := range fragments {
			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}
			select {
			case contentCh <- f:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if streamErr != nil {
			errCh <- streamErr
		}
	}()

	return contentCh, errCh
}

func (s *Service) Provider() llm.Provider { return "test" }
func (s *Service) ModelName() string { return "scripted" }
