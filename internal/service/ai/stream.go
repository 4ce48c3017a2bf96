package ai

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino/schema"
)

// Stream is a lazy, finite, non-restartable sequence of text fragments.
// Recv returns io.EOF after the last fragment. Close abandons the
// upstream connection and may be called more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

const readBufferSize = 4096

// wireStream reads an HTTP response body through a Decoder.
type wireStream struct {
	provider string
	body     io.ReadCloser
	dec      *Decoder
	buf      []byte
	pending  []string
	err      error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newWireStream(provider string, format Format, body io.ReadCloser) *wireStream {
	return &wireStream{
		provider: provider,
		body:     body,
		dec:      NewDecoder(format),
		buf:      make([]byte, readBufferSize),
	}
}

func (s *wireStream) Recv() (string, error) {
	for {
		if s.closed.Load() {
			return "", ErrStreamClosed
		}
		if len(s.pending) > 0 {
			fragment := s.pending[0]
			s.pending = s.pending[1:]
			return fragment, nil
		}
		if s.err != nil {
			return "", s.err
		}
		if s.dec.Done() {
			s.err = io.EOF
			continue
		}

		n, readErr := s.body.Read(s.buf)
		if n > 0 {
			fragments, err := s.dec.Feed(s.buf[:n])
			s.pending = append(s.pending, fragments...)
			if err != nil {
				s.err = &StreamError{Provider: s.provider, Err: err}
				continue
			}
		}

		if readErr == nil {
			continue
		}
		if !errors.Is(readErr, io.EOF) {
			s.err = &StreamError{Provider: s.provider, Err: readErr}
			continue
		}

		fragments, err := s.dec.Flush()
		s.pending = append(s.pending, fragments...)
		switch {
		case err != nil:
			s.err = &StreamError{Provider: s.provider, Err: err}
		case !s.dec.Done():
			log.Printf("[ai] %s stream ended without terminal record, treating as complete", s.provider)
			s.err = io.EOF
		default:
			s.err = io.EOF
		}
	}
}

func (s *wireStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.body.Close()
		if skipped := s.dec.Skipped(); skipped > 0 {
			log.Printf("[ai] %s stream dropped %d malformed records", s.provider, skipped)
		}
	})
	return s.closeErr
}

// messageStream adapts an eino message stream to Stream.
type messageStream struct {
	provider  string
	reader    *schema.StreamReader[*schema.Message]
	closeOnce sync.Once
	closed    atomic.Bool
}

func newMessageStream(provider string, reader *schema.StreamReader[*schema.Message]) *messageStream {
	return &messageStream{provider: provider, reader: reader}
}

func (s *messageStream) Recv() (string, error) {
	for {
		if s.closed.Load() {
			return "", ErrStreamClosed
		}
		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", &StreamError{Provider: s.provider, Err: err}
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
}

func (s *messageStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.reader.Close()
	})
	return nil
}
