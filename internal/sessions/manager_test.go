package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/chatmesh/gateway/internal/model"
)

func newQuery(kind model.LauncherType, id string) *model.Query {
	launcher := model.Launcher{Kind: kind, ID: id}
	evt := &model.MessageEvent{Channel: model.ChannelDiscord, RawID: "raw-1", Timestamp: time.Now()}
	chain := model.MessageChain{{Kind: model.ElementText, Text: "hello"}}
	return model.NewQuery(launcher, id, evt, chain, nil)
}

func TestGetOrCreateSessionReusesExisting(t *testing.T) {
	m := NewManager(Config{})
	q := newQuery(model.LauncherPerson, "user-1")

	s1 := m.GetOrCreateSession(context.Background(), q)
	s2 := m.GetOrCreateSession(context.Background(), q)

	if s1 != s2 {
		t.Fatalf("expected the same session to be returned for the same launcher")
	}
}

func TestGetOrCreateConversationExpandsPromptOnce(t *testing.T) {
	calls := 0
	m := NewManager(Config{
		ExpandPrompt: func(any) []model.Message {
			calls++
			return []model.Message{{Role: model.RoleSystem, Content: "you are a helpful bot"}}
		},
	})
	q := newQuery(model.LauncherGroup, "group-1")
	sess := m.GetOrCreateSession(context.Background(), q)

	conv1 := m.GetOrCreateConversation(context.Background(), sess, nil)
	conv2 := m.GetOrCreateConversation(context.Background(), sess, nil)

	if conv1 != conv2 {
		t.Fatalf("expected the existing using-conversation to be reused")
	}
	if calls != 1 {
		t.Fatalf("expected prompt expansion exactly once, got %d", calls)
	}
	if len(conv1.Prompt) != 1 || conv1.Prompt[0].Content != "you are a helpful bot" {
		t.Fatalf("unexpected prompt: %+v", conv1.Prompt)
	}
}

func TestResetClearsHistoryAndReexpandsPrompt(t *testing.T) {
	m := NewManager(Config{
		ExpandPrompt: func(any) []model.Message {
			return []model.Message{{Role: model.RoleSystem, Content: "fresh prompt"}}
		},
	})
	q := newQuery(model.LauncherPerson, "user-2")
	sess := m.GetOrCreateSession(context.Background(), q)
	conv := m.GetOrCreateConversation(context.Background(), sess, nil)
	conv.Append(model.Message{Role: model.RoleUser, Content: "hi"})

	m.Reset(context.Background(), sess, nil, "explicit")

	if len(conv.History) != 0 {
		t.Fatalf("expected history cleared after reset, got %d messages", len(conv.History))
	}
	if len(conv.Prompt) != 1 || conv.Prompt[0].Content != "fresh prompt" {
		t.Fatalf("expected prompt re-expanded after reset, got %+v", conv.Prompt)
	}
}

type fakeStore struct {
	saved []Record
}

func (f *fakeStore) Load(ctx context.Context) ([]Record, error) { return nil, nil }
func (f *fakeStore) Save(ctx context.Context, rec Record) error {
	f.saved = append(f.saved, rec)
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, kind model.LauncherType, id string) error {
	return nil
}

func TestSweepExpiresOnlyStaleSessions(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(Config{
		Store:       store,
		ExpireAfter: time.Hour,
	})

	now := time.Now()
	m.SetNowFunc(func() time.Time { return now })

	stale := newQuery(model.LauncherPerson, "stale-user")
	fresh := newQuery(model.LauncherPerson, "fresh-user")

	staleSess := m.GetOrCreateSession(context.Background(), stale)
	freshSess := m.GetOrCreateSession(context.Background(), fresh)

	// Session.Touch always stamps the real wall clock, so backdate the
	// stale session's last-interaction directly to simulate two hours of
	// idle time against the manager's injected "now".
	staleSess.LastInteractTS = now.Add(-2 * time.Hour)
	freshSess.LastInteractTS = now.Add(-10 * time.Minute)

	n := m.Sweep(context.Background())

	if n != 1 {
		t.Fatalf("expected exactly 1 session to expire, got %d", n)
	}
	if _, ok := m.Get(SessionKeyFor(staleSess)); ok {
		t.Fatalf("expected stale session to be removed from the live map")
	}
	if _, ok := m.Get(SessionKeyFor(freshSess)); !ok {
		t.Fatalf("expected fresh session to remain live")
	}
	if len(store.saved) != 1 || store.saved[0].Status != model.SessionExpired {
		t.Fatalf("expected exactly one expired record persisted, got %+v", store.saved)
	}
}

// SessionKeyFor is a small test helper mirroring model.SessionKey so tests
// don't need to reach into the session's unexported fields.
func SessionKeyFor(sess *model.Session) string {
	return model.SessionKey(sess.Launcher)
}
