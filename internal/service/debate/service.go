package debate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/z-arena/backend/internal/config"
	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	modeldebate "github.com/zhouzirui/z-arena/backend/internal/model/debate"
	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
	"github.com/zhouzirui/z-arena/backend/internal/service/events"
	"github.com/zhouzirui/z-arena/backend/internal/service/relay"
	"github.com/zhouzirui/z-arena/backend/internal/store"
)

// ValidationError wraps a malformed turn request.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// Opener starts an upstream completion stream.
type Opener interface {
	Open(ctx context.Context, target ai.Target, prompt []*schema.Message, params ai.Params) (ai.Stream, error)
}

// Turn is a started debate turn whose stream has not been consumed yet.
type Turn struct {
	Request modeldebate.TurnRequest
	Role    modeldebate.Role
	Session *relay.Session
	Stream  ai.Stream
	started time.Time
}

// Service orchestrates debate turns around the relay.
type Service struct {
	store     store.Store
	opener    Opener
	history   *HistoryBuilder
	publisher events.Publisher
	cfg       config.RelayConfig
}

// NewService wires the debate orchestration. A nil publisher disables events.
func NewService(st store.Store, opener Opener, history *HistoryBuilder, publisher events.Publisher, cfg config.RelayConfig) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		store:     st,
		opener:    opener,
		history:   history,
		publisher: publisher,
		cfg:       cfg,
	}
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// SessionTimeout bounds a single relay on the server side.
func (s *Service) SessionTimeout() time.Duration {
	return s.cfg.SessionTimeout
}

// StartTurn validates req, builds the prompt and opens the upstream
// stream. Every configuration or upstream request failure is returned
// here, before the caller has written anything to its client.
func (s *Service) StartTurn(ctx context.Context, req modeldebate.TurnRequest) (*Turn, error) {
	req.ConversationID = strings.TrimSpace(req.ConversationID)

	if req.ConversationID != "" && (strings.TrimSpace(req.Topic) == "" || len(req.Messages) == 0) {
		conv, err := s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Topic) == "" {
			req.Topic = conv.Topic
		}
		if len(req.Messages) == 0 {
			history, err := s.store.ListMessages(ctx, req.ConversationID)
			if err != nil {
				return nil, fmt.Errorf("failed to load history: %w", err)
			}
			req.Messages = history
		}
	}

	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	role := req.CurrentTurn
	selection := req.ProviderFor(role)
	target := ai.Target{
		Provider: selection.Provider,
		Model:    selection.Model,
		APIKey:   selection.APIKey,
	}
	params := ai.Params{
		Temperature: s.cfg.DefaultTemperature,
		MaxTokens:   s.cfg.DefaultMaxTokens,
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		params.MaxTokens = *req.MaxTokens
	}

	prompt := s.history.Build(role, req.Topic, req.Messages)
	session := relay.NewSession(target, prompt, params)

	stream, err := s.opener.Open(ctx, target, prompt, params)
	if err != nil {
		log.Printf("[debate] session=%s role=%s provider=%s open failed: %v", session.ID, role, target.Provider, err)
		return nil, err
	}

	log.Printf("[debate] session=%s role=%s provider=%s model=%s history=%d", session.ID, role, target.Provider, target.Model, len(req.Messages))
	return &Turn{
		Request: req,
		Role:    role,
		Session: session,
		Stream:  stream,
		started: time.Now(),
	}, nil
}

// CollectTurn drains the turn without streaming, for clients that asked
// for a single JSON response.
func (s *Service) CollectTurn(ctx context.Context, turn *Turn) relay.Result {
	text, fragments, err := relay.Collect(ctx, turn.Stream)

	result := relay.Result{State: relay.StateCompleted, Text: text, Fragments: fragments, Err: err}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		result.State = relay.StateCancelled
		result.Err = nil
	default:
		result.State = relay.StateFailed
	}
	return result
}

// FinishTurn persists a completed turn and publishes the outcome. Failed
// and cancelled turns are never persisted; their partial text stays with
// the caller. The stored message is returned when one was written.
func (s *Service) FinishTurn(ctx context.Context, turn *Turn, result relay.Result) (*chat.Message, error) {
	event := events.TurnEvent{
		SessionID:      turn.Session.ID,
		ConversationID: turn.Request.ConversationID,
		Role:           string(turn.Role),
		Provider:       turn.Session.Target.Provider,
		Model:          turn.Session.Target.Model,
		Fragments:      result.Fragments,
		Characters:     len(result.Text),
		DurationMillis: time.Since(turn.started).Milliseconds(),
		FinishedAt:     time.Now().UTC(),
	}

	var (
		stored  *chat.Message
		saveErr error
	)
	switch result.State {
	case relay.StateCompleted:
		event.Outcome = events.OutcomeCompleted
		if turn.Request.ConversationID != "" && strings.TrimSpace(result.Text) != "" {
			msg, err := s.store.CreateMessage(ctx, chat.Message{
				ConversationID: turn.Request.ConversationID,
				Sender:         turn.Role.Sender(),
				Content:        result.Text,
			})
			if err != nil {
				saveErr = fmt.Errorf("failed to persist turn: %w", err)
				log.Printf("[debate] session=%s %v", turn.Session.ID, saveErr)
			} else {
				stored = &msg
				event.MessageID = msg.ID
			}
		}
	case relay.StateFailed:
		event.Outcome = events.OutcomeFailed
		if result.Err != nil {
			event.Error = result.Err.Error()
		}
	default:
		event.Outcome = events.OutcomeCancelled
	}

	// Publishing must not depend on the request context, which is
	// usually already cancelled for an aborted turn.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.PublishTurn(pubCtx, event); err != nil {
		log.Printf("[debate] session=%s publish %s event failed: %v", turn.Session.ID, event.Outcome, err)
	}

	return stored, saveErr
}

// IsClientError reports whether err should be answered with 400.
func IsClientError(err error) bool {
	var validation *ValidationError
	var cfgErr *ai.ConfigError
	return errors.As(err, &validation) || errors.As(err, &cfgErr)
}
