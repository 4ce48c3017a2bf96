package relay

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
)

// ErrClientDisconnected is returned by sinks whose consumer went away.
// Run treats it as cancellation, never as a failure.
var ErrClientDisconnected = errors.New("client disconnected")

// Sink is the outbound side of a relay.
type Sink interface {
	Fragment(text string) error
	Done() error
	Fail(message string) error
	Close() error
}

// Result summarizes a finished relay.
type Result struct {
	State     State
	Text      string
	Fragments int
	Err       error
}

// Controller forwards upstream fragments to a sink.
type Controller struct{}

// NewController returns a relay controller.
func NewController() *Controller {
	return &Controller{}
}

// Run drives the session until the stream ends, fails, or the consumer
// disconnects. The stream and the sink are always closed on return.
func (c *Controller) Run(ctx context.Context, session *Session, stream ai.Stream, sink Sink) Result {
	defer sink.Close()
	defer stream.Close()

	for {
		if err := ctx.Err(); err != nil {
			return c.cancel(session)
		}

		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if werr := sink.Done(); werr != nil {
				return c.cancel(session)
			}
			session.transition(StateCompleted)
			log.Printf("[relay] session=%s completed fragments=%d", session.ID, session.Seq())
			return c.result(session, nil)
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.cancel(session)
			}
			log.Printf("[relay] session=%s upstream failed after %d fragments: %v", session.ID, session.Seq(), err)
			if werr := sink.Fail(err.Error()); werr != nil {
				log.Printf("[relay] session=%s failed to deliver error event: %v", session.ID, werr)
			}
			session.transition(StateFailed)
			return c.result(session, err)
		}
		if fragment == "" {
			continue
		}

		if werr := sink.Fragment(fragment); werr != nil {
			_ = stream.Close()
			return c.cancel(session)
		}
		session.record(fragment)
		session.transition(StateStreaming)
	}
}

func (c *Controller) cancel(session *Session) Result {
	session.transition(StateCancelled)
	log.Printf("[relay] session=%s cancelled after %d fragments", session.ID, session.Seq())
	return c.result(session, nil)
}

func (c *Controller) result(session *Session, err error) Result {
	return Result{
		State:     session.State(),
		Text:      session.Text(),
		Fragments: session.Seq(),
		Err:       err,
	}
}
