package stages

import (
	"context"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
	"github.com/chatmesh/gateway/internal/pipeline"
	"github.com/chatmesh/gateway/internal/plugins"
	"github.com/chatmesh/gateway/internal/sessions"
)

// SessionAcquire finds-or-creates the Session and Conversation for a query,
// acquires the session's concurrency permit for the query's remaining
// lifetime, and fires person_message_received/group_message_received.
// Holding the permit for the whole query both caps parallelism per
// launcher and preserves reply ordering when the cap is 1.
type SessionAcquire struct {
	Manager *sessions.Manager
	Host    *plugins.Host
}

func NewSessionAcquire(mgr *sessions.Manager, host *plugins.Host) *SessionAcquire {
	return &SessionAcquire{Manager: mgr, Host: host}
}

func (s *SessionAcquire) Name() string { return NameSessionAcquire }
func (s *SessionAcquire) Initialize(pipelineConfig any) error { return nil }

func (s *SessionAcquire) Process(ctx context.Context, q *model.Query) (pipeline.StageResult, error) {
	sess := s.Manager.GetOrCreateSession(ctx, q)
	q.Session = sess

	release, err := s.acquire(ctx, sess)
	if err != nil {
		return pipeline.StageResult{}, err
	}
	q.SemaphoreRelease = release

	q.Conversation = s.Manager.GetOrCreateConversation(ctx, sess, q.PipelineConfig)

	// A history that fails shape validation (orphan tool results,
	// interleaved system turns) is reset to the default prompt before any
	// request is built from it.
	if len(q.Conversation.History) > 0 && !model.WellFormedHistory(q.Conversation.History) {
		s.Manager.Reset(ctx, sess, q.PipelineConfig, "validation_failure")
	}

	if s.Host != nil {
		kind := model.EventPersonMessageReceived
		if q.Launcher.Kind == model.LauncherGroup {
			kind = model.EventGroupMessageReceived
		}
		evt := model.NewEvent(kind, map[string]any{
			"query_id":  q.ID,
			"launcher":  q.Launcher,
			"sender_id": q.SenderID,
			"chain":     q.MessageChain,
		})
		s.Host.Emit(ctx, evt)
		if evt.IsDefaultPrevented() {
			for _, v := range evt.Returns("reply") {
				if text, ok := v.(string); ok {
					q.AppendReply(model.Message{Role: model.RoleAssistant, Content: text})
				}
			}
			return pipeline.Jump(NameResponseWrap), nil
		}
	}
	return pipeline.Continue(), nil
}

// acquire blocks on the session's permit channel, honoring ctx
// cancellation so a query that times out before it gets a slot never
// leaks a goroutine waiting forever.
func (s *SessionAcquire) acquire(ctx context.Context, sess *model.Session) (func(), error) {
	type result struct {
		release func()
	}
	done := make(chan result, 1)
	go func() {
		done <- result{release: sess.Acquire()}
	}()

	select {
	case r := <-done:
		return r.release, nil
	case <-ctx.Done():
		// The goroutine above will still acquire and immediately hold a
		// permit with nobody to release it; drain it asynchronously so the
		// semaphore doesn't leak past this cancelled query.
		go func() {
			r := <-done
			r.release()
		}()
		return nil, perrors.NewSession("session capacity exhausted before acquire", ctx.Err())
	}
}
