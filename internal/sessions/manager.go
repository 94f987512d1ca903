package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/plugins"
)

// ConcurrencyConfig configures the per-session permit count read from
// system config: a default plus optional per-launcher overrides.
type ConcurrencyConfig struct {
	Default    int
	PerSession map[string]int // keyed by model.SessionKey(launcher)
}

func (c ConcurrencyConfig) permitsFor(key string) int {
	if n, ok := c.PerSession[key]; ok && n > 0 {
		return n
	}
	if c.Default > 0 {
		return c.Default
	}
	return 1
}

// PromptExpander builds a Conversation's initial Prompt from the pipeline
// config snapshot, e.g. expanding a template into a system message.
type PromptExpander func(pipelineConfig any) []model.Message

// Manager is the Session Manager: get-or-create, expiry, and reset.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	store        Store
	host         *plugins.Host
	concurrency  ConcurrencyConfig
	expireAfter  time.Duration
	expandPrompt PromptExpander
	nowFunc      func() time.Time
	logger       *slog.Logger
}

// Config bundles Manager construction parameters.
type Config struct {
	Store        Store
	Host         *plugins.Host
	Concurrency  ConcurrencyConfig
	ExpireAfter  time.Duration
	ExpandPrompt PromptExpander
	Logger       *slog.Logger
}

// NewManager constructs a Manager. Host may be nil (no plugin events
// fired); Store may be nil (no persistence).
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	expand := cfg.ExpandPrompt
	if expand == nil {
		expand = func(any) []model.Message { return nil }
	}
	return &Manager{
		sessions:     make(map[string]*model.Session),
		store:        cfg.Store,
		host:         cfg.Host,
		concurrency:  cfg.Concurrency,
		expireAfter:  cfg.ExpireAfter,
		expandPrompt: expand,
		nowFunc:      time.Now,
		logger:       logger.With("component", "sessions"),
	}
}

// SetNowFunc overrides the time source, for deterministic expiry tests.
func (m *Manager) SetNowFunc(fn func() time.Time) {
	m.nowFunc = fn
}

// Load warms the in-memory session map from the configured Store.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	recs, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		launcher := model.Launcher{Kind: rec.LauncherKind, ID: rec.LauncherID}
		key := model.SessionKey(launcher)
		sess := model.NewSession(launcher, m.concurrency.permitsFor(key))
		sess.CreateTS = time.Unix(rec.CreateTS, 0)
		sess.LastInteractTS = time.Unix(rec.LastInteractTS, 0)
		sess.Status = rec.Status
		conv := &model.Conversation{ID: uuid.NewString(), Prompt: rec.Prompt}
		sess.AddConversation(conv)
		m.sessions[key] = sess
	}
	return nil
}

// GetOrCreateSession finds the session for query.Launcher or creates one
// with a freshly minted semaphore sized from ConcurrencyConfig.
func (m *Manager) GetOrCreateSession(ctx context.Context, q *model.Query) *model.Session {
	key := model.SessionKey(q.Launcher)

	m.mu.Lock()
	sess, ok := m.sessions[key]
	if !ok {
		sess = model.NewSession(q.Launcher, m.concurrency.permitsFor(key))
		m.sessions[key] = sess
	}
	m.mu.Unlock()

	sess.Touch()
	return sess
}

// GetOrCreateConversation materializes the using conversation for a
// session, expanding the prompt from pipelineConfig if none exists yet.
func (m *Manager) GetOrCreateConversation(ctx context.Context, sess *model.Session, pipelineConfig any) *model.Conversation {
	if conv := sess.UsingConversation(); conv != nil {
		return conv
	}

	conv := &model.Conversation{
		ID:     uuid.NewString(),
		Prompt: m.expandPrompt(pipelineConfig),
	}
	sess.AddConversation(conv)

	if m.host != nil {
		m.host.Emit(ctx, model.NewEvent(model.EventSessionFirstMessage, map[string]any{
			"launcher": sess.Launcher,
		}))
	}
	return conv
}

// Reset clears the session's using conversation history and re-expands its
// prompt, emitting session.reset. reason is one of "explicit", "expired"
// or "validation_failure"; an explicit reset also persists the session
// record (if a Store is configured).
func (m *Manager) Reset(ctx context.Context, sess *model.Session, pipelineConfig any, reason string) {
	discarded := 0
	if conv := sess.UsingConversation(); conv != nil {
		discarded = len(conv.History)
	}

	defaultPrompt := m.expandPrompt(pipelineConfig)
	sess.Reset(defaultPrompt)
	if reason == "explicit" {
		m.persist(ctx, sess)
	}

	if m.host != nil {
		m.host.Emit(ctx, model.NewEvent(model.EventSessionReset, map[string]any{
			"launcher": sess.Launcher,
			"reason":   reason,
		}))
	}
	// A corrupted history is never dropped silently; the discarded length
	// stays observable in the log.
	if reason == "validation_failure" {
		m.logger.Warn("session reset", "launcher", sess.Launcher, "reason", reason, "discarded_messages", discarded)
		return
	}
	m.logger.Info("session reset", "launcher", sess.Launcher, "reason", reason, "discarded_messages", discarded)
}

// Sweep closes every session whose LastInteractTS exceeded ExpireAfter,
// persisting its session record (using conversation's prompt, timestamps
// and status; the conversation history is not saved) if a Store is configured, emitting
// session.expired, and removing it from the live set. A single global
// sweeper call handles every session instead of one timer goroutine per
// session. Returns the number of sessions expired.
func (m *Manager) Sweep(ctx context.Context) int {
	if m.expireAfter <= 0 {
		return 0
	}
	now := m.nowFunc()

	m.mu.Lock()
	var expired []*model.Session
	for key, sess := range m.sessions {
		if now.Sub(sess.LastInteraction()) > m.expireAfter {
			expired = append(expired, sess)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.Status = model.SessionExpired
		m.persist(ctx, sess)

		if m.host != nil {
			m.host.Emit(ctx, model.NewEvent(model.EventSessionExpired, map[string]any{
				"launcher": sess.Launcher,
			}))
		}
		m.logger.Info("session expired", "launcher", sess.Launcher)
	}
	return len(expired)
}

func (m *Manager) persist(ctx context.Context, sess *model.Session) {
	if m.store == nil {
		return
	}
	conv := sess.UsingConversation()
	var prompt []model.Message
	if conv != nil {
		prompt = conv.Prompt
	}
	rec := Record{
		LauncherKind:   sess.Launcher.Kind,
		LauncherID:     sess.Launcher.ID,
		CreateTS:       sess.CreateTS.Unix(),
		LastInteractTS: sess.LastInteractTS.Unix(),
		Prompt:         prompt,
		Status:         sess.Status,
	}
	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.Error("failed to persist session", "launcher", sess.Launcher, "error", err)
	}
}

// Get returns the live session for key, if any.
func (m *Manager) Get(key string) (*model.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	return sess, ok
}

// List returns a copy of the live sessions keyed by session key (a map, so
// unordered), for admin commands like session-list.
func (m *Manager) List() map[string]*model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*model.Session, len(m.sessions))
	for k, v := range m.sessions {
		out[k] = v
	}
	return out
}

// Close persists and removes every live session, used on shutdown.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*model.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*model.Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Status = model.SessionExplicitlyClosed
		m.persist(ctx, sess)
	}
}
