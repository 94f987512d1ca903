// Package sessions implements the session manager: finding or creating
// per-launcher Sessions and Conversations, expiring idle sessions, and
// persisting them through a pluggable Store.
package sessions

import (
	"context"

	"github.com/chatmesh/gateway/internal/model"
)

// Record is the persisted shape of a session.
type Record struct {
	LauncherKind   model.LauncherType
	LauncherID     string
	CreateTS       int64
	LastInteractTS int64
	Prompt         []model.Message
	DefaultPrompt  []model.Message
	TokenCounts    []int
	Status         model.SessionStatus
}

// Store persists Session records across restarts. The core only depends on
// this shape; concrete implementations live in internal/storage.
type Store interface {
	// Load returns every persisted session whose Status is on_going, used
	// at boot to warm the in-memory session map.
	Load(ctx context.Context) ([]Record, error)

	// Save upserts one session record, called on explicit reset, on
	// expiry, and on shutdown.
	Save(ctx context.Context, rec Record) error

	// Delete removes a session record entirely.
	Delete(ctx context.Context, launcherKind model.LauncherType, launcherID string) error
}
