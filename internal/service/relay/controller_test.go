package relay

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
	"github.com/zhouzirui/z-arena/backend/pkg/utils"
)

type fakeStream struct {
	fragments []string
	err       error
	reads     int
	closes    int
	onRecv    func(n int)
}

func (f *fakeStream) Recv() (string, error) {
	f.reads++
	if f.onRecv != nil {
		f.onRecv(f.reads)
	}
	if len(f.fragments) > 0 {
		next := f.fragments[0]
		f.fragments = f.fragments[1:]
		return next, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", io.EOF
}

func (f *fakeStream) Close() error {
	f.closes++
	return nil
}

type recordingSink struct {
	fragments []string
	done      int
	fails     []string
	closes    int
	failAfter int
}

func (s *recordingSink) Fragment(text string) error {
	if s.failAfter > 0 && len(s.fragments) >= s.failAfter {
		return ErrClientDisconnected
	}
	s.fragments = append(s.fragments, text)
	return nil
}

func (s *recordingSink) Done() error { s.done++; return nil }

func (s *recordingSink) Fail(message string) error {
	s.fails = append(s.fails, message)
	return nil
}

func (s *recordingSink) Close() error { s.closes++; return nil }

func newTestSession() *Session {
	return NewSession(ai.Target{Provider: "openai", Model: "gpt-4o-mini"}, nil, ai.Params{Temperature: 0.7})
}

func TestRunForwardsFragmentsInOrder(t *testing.T) {
	stream := &fakeStream{fragments: []string{"Hel", "lo", " world"}}
	sink := &recordingSink{}
	session := newTestSession()

	result := NewController().Run(context.Background(), session, stream, sink)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, "Hello world", result.Text)
	assert.Equal(t, 3, result.Fragments)
	assert.NoError(t, result.Err)
	assert.Equal(t, []string{"Hel", "lo", " world"}, sink.fragments)
	assert.Equal(t, 1, sink.done)
	assert.Empty(t, sink.fails)
	assert.Equal(t, 1, sink.closes)
	assert.GreaterOrEqual(t, stream.closes, 1)
}

func TestRunOverSSEWriterProducesWireFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, ok := utils.NewSSEWriter(context.Background(), rec)
	require.True(t, ok)

	stream := &fakeStream{fragments: []string{"Hel", "lo", " world"}}
	result := NewController().Run(context.Background(), newTestSession(), stream, writer)
	require.Equal(t, StateCompleted, result.State)

	body := rec.Body.String()
	assert.Equal(t, 3, strings.Count(body, `"content"`))
	assert.Equal(t, 1, strings.Count(body, "data: [DONE]\n\n"))
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestRunUpstreamFailureEmitsSingleErrorEvent(t *testing.T) {
	stream := &fakeStream{
		fragments: []string{"partial"},
		err:       &ai.StreamError{Provider: "openai", Err: errors.New("connection reset")},
	}
	sink := &recordingSink{}

	result := NewController().Run(context.Background(), newTestSession(), stream, sink)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "partial", result.Text)
	require.Len(t, sink.fails, 1)
	assert.Contains(t, sink.fails[0], "connection reset")
	assert.Zero(t, sink.done)
	var streamErr *ai.StreamError
	assert.ErrorAs(t, result.Err, &streamErr)
}

func TestRunSinkFailureCancelsAndStopsReading(t *testing.T) {
	stream := &fakeStream{fragments: []string{"a", "b", "c", "d"}}
	sink := &recordingSink{failAfter: 2}

	result := NewController().Run(context.Background(), newTestSession(), stream, sink)

	assert.Equal(t, StateCancelled, result.State)
	assert.NoError(t, result.Err)
	assert.Equal(t, "ab", result.Text)
	assert.Equal(t, 3, stream.reads)
	assert.GreaterOrEqual(t, stream.closes, 1)
	assert.Zero(t, sink.done)
	assert.Empty(t, sink.fails)
}

func TestRunContextCancelStopsWithinOneRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := &fakeStream{
		fragments: []string{"1", "2", "3", "4", "5"},
		onRecv: func(n int) {
			if n == 2 {
				cancel()
			}
		},
	}
	sink := &recordingSink{}

	result := NewController().Run(ctx, newTestSession(), stream, sink)

	assert.Equal(t, StateCancelled, result.State)
	assert.Equal(t, 2, stream.reads)
	assert.LessOrEqual(t, len(sink.fragments), 2)
	assert.Zero(t, sink.done)
	assert.Empty(t, sink.fails)
	assert.Equal(t, 1, sink.closes)
}

func TestRunCancelledUpstreamErrorIsNotFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := &fakeStream{err: context.Canceled, onRecv: func(int) { cancel() }}
	sink := &recordingSink{}

	result := NewController().Run(ctx, newTestSession(), stream, sink)

	assert.Equal(t, StateCancelled, result.State)
	assert.Empty(t, sink.fails)
}

func TestSessionTransitionsForwardOnly(t *testing.T) {
	session := newTestSession()
	assert.Equal(t, StatePending, session.State())

	assert.True(t, session.transition(StateStreaming))
	assert.False(t, session.transition(StatePending))
	assert.True(t, session.transition(StateCompleted))
	assert.False(t, session.transition(StateFailed))
	assert.Equal(t, StateCompleted, session.State())
	assert.NotEmpty(t, session.ID)
}

func TestCollect(t *testing.T) {
	text, fragments, err := Collect(context.Background(), &fakeStream{fragments: []string{"Hel", "", "lo"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, 2, fragments)

	failing := &fakeStream{fragments: []string{"half"}, err: errors.New("boom")}
	text, fragments, err = Collect(context.Background(), failing)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "half", text)
	assert.Equal(t, 1, fragments)
	assert.Equal(t, 1, failing.closes)
}

func TestRunEntersStreamingOnFirstDeliveredFragment(t *testing.T) {
	session := newTestSession()
	var seen []State
	stream := &fakeStream{
		fragments: []string{"a", "b"},
		onRecv:    func(int) { seen = append(seen, session.State()) },
	}

	result := NewController().Run(context.Background(), session, stream, &recordingSink{})

	require.Equal(t, StateCompleted, result.State)
	assert.Equal(t, []State{StatePending, StateStreaming, StateStreaming}, seen)
}

func TestRunWithoutFragmentsCompletesFromPending(t *testing.T) {
	session := newTestSession()
	var seen []State
	stream := &fakeStream{onRecv: func(int) { seen = append(seen, session.State()) }}
	sink := &recordingSink{}

	result := NewController().Run(context.Background(), session, stream, sink)

	assert.Equal(t, []State{StatePending}, seen)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, 1, sink.done)
	assert.Equal(t, 0, result.Fragments)
}
