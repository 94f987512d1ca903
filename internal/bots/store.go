// Package bots defines the persistence capability for configured platform
// bot identities (uuid, adapter name, adapter config, enable flag),
// mirrored on internal/sessions.Store's shape so internal/storage's
// concrete sqlite/postgres stores can implement both from the same
// connection.
package bots

import (
	"context"
	"errors"

	"github.com/chatmesh/gateway/internal/model"
)

// ErrNotFound is returned by Get when no bot with the given uuid exists.
var ErrNotFound = errors.New("bots: not found")

// Store persists Bot records across restarts. internal/controlplane uses
// this directly to back its bot CRUD routes.
type Store interface {
	List(ctx context.Context) ([]model.Bot, error)
	Get(ctx context.Context, uuid string) (model.Bot, error)
	Create(ctx context.Context, bot model.Bot) error
	Update(ctx context.Context, bot model.Bot) error
	Delete(ctx context.Context, uuid string) error
}
