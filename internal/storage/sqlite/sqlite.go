// Package sqlite implements sessions.Store and bots.Store against an
// embedded SQLite database via the pure-Go modernc.org/sqlite driver, for
// single-node deployments that don't want to run a database server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/chatmesh/gateway/internal/bots"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/sessions"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	launcher_kind TEXT NOT NULL,
	launcher_id   TEXT NOT NULL,
	create_ts     INTEGER NOT NULL,
	last_interact_ts INTEGER NOT NULL,
	prompt        TEXT NOT NULL,
	default_prompt TEXT NOT NULL,
	token_counts  TEXT NOT NULL,
	status        TEXT NOT NULL,
	PRIMARY KEY (launcher_kind, launcher_id)
);

CREATE TABLE IF NOT EXISTS bots (
	uuid           TEXT PRIMARY KEY,
	adapter_name   TEXT NOT NULL,
	adapter_config TEXT NOT NULL,
	enable         INTEGER NOT NULL
);
`

// Store bundles the two persistence capabilities this gateway needs over
// one SQLite connection. sessions.Store and bots.Store both declare a
// differently-shaped Delete, so they're split into Store.Sessions and
// Store.Bots rather than both implemented directly on one receiver.
type Store struct {
	db       *sql.DB
	Sessions *SessionStore
	Bots     *BotStore
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{
		db:       db,
		Sessions: &SessionStore{db: db},
		Bots:     &BotStore{db: db},
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SessionStore implements sessions.Store.
type SessionStore struct {
	db *sql.DB
}

var _ sessions.Store = (*SessionStore)(nil)

func (s *SessionStore) Load(ctx context.Context) ([]sessions.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT launcher_kind, launcher_id, create_ts, last_interact_ts, prompt, default_prompt, token_counts, status
		 FROM sessions WHERE status = ?`, string(model.SessionOnGoing))
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	var out []sessions.Record
	for rows.Next() {
		var rec sessions.Record
		var kind, status, promptJSON, defaultPromptJSON, tokenCountsJSON string
		if err := rows.Scan(&kind, &rec.LauncherID, &rec.CreateTS, &rec.LastInteractTS, &promptJSON, &defaultPromptJSON, &tokenCountsJSON, &status); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		rec.LauncherKind = model.LauncherType(kind)
		rec.Status = model.SessionStatus(status)
		if err := json.Unmarshal([]byte(promptJSON), &rec.Prompt); err != nil {
			return nil, fmt.Errorf("unmarshal prompt: %w", err)
		}
		if err := json.Unmarshal([]byte(defaultPromptJSON), &rec.DefaultPrompt); err != nil {
			return nil, fmt.Errorf("unmarshal default prompt: %w", err)
		}
		if err := json.Unmarshal([]byte(tokenCountsJSON), &rec.TokenCounts); err != nil {
			return nil, fmt.Errorf("unmarshal token counts: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SessionStore) Save(ctx context.Context, rec sessions.Record) error {
	prompt, err := json.Marshal(rec.Prompt)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	defaultPrompt, err := json.Marshal(rec.DefaultPrompt)
	if err != nil {
		return fmt.Errorf("marshal default prompt: %w", err)
	}
	tokenCounts, err := json.Marshal(rec.TokenCounts)
	if err != nil {
		return fmt.Errorf("marshal token counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (launcher_kind, launcher_id, create_ts, last_interact_ts, prompt, default_prompt, token_counts, status)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(launcher_kind, launcher_id) DO UPDATE SET
		   create_ts=excluded.create_ts, last_interact_ts=excluded.last_interact_ts,
		   prompt=excluded.prompt, default_prompt=excluded.default_prompt,
		   token_counts=excluded.token_counts, status=excluded.status`,
		string(rec.LauncherKind), rec.LauncherID, rec.CreateTS, rec.LastInteractTS, prompt, defaultPrompt, tokenCounts, string(rec.Status))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, launcherKind model.LauncherType, launcherID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE launcher_kind = ? AND launcher_id = ?`, string(launcherKind), launcherID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// BotStore implements bots.Store.
type BotStore struct {
	db *sql.DB
}

var _ bots.Store = (*BotStore)(nil)

func (s *BotStore) List(ctx context.Context) ([]model.Bot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, adapter_name, adapter_config, enable FROM bots`)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var out []model.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BotStore) Get(ctx context.Context, uuid string) (model.Bot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uuid, adapter_name, adapter_config, enable FROM bots WHERE uuid = ?`, uuid)
	b, err := scanBot(row)
	if err == sql.ErrNoRows {
		return model.Bot{}, bots.ErrNotFound
	}
	return b, err
}

func (s *BotStore) Create(ctx context.Context, bot model.Bot) error {
	cfg, err := json.Marshal(bot.AdapterConfig)
	if err != nil {
		return fmt.Errorf("marshal adapter config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bots (uuid, adapter_name, adapter_config, enable) VALUES (?,?,?,?)`,
		bot.UUID, bot.AdapterName, cfg, boolToInt(bot.Enable))
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	return nil
}

func (s *BotStore) Update(ctx context.Context, bot model.Bot) error {
	cfg, err := json.Marshal(bot.AdapterConfig)
	if err != nil {
		return fmt.Errorf("marshal adapter config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE bots SET adapter_name = ?, adapter_config = ?, enable = ? WHERE uuid = ?`,
		bot.AdapterName, cfg, boolToInt(bot.Enable), bot.UUID)
	if err != nil {
		return fmt.Errorf("update bot: %w", err)
	}
	return nil
}

func (s *BotStore) Delete(ctx context.Context, uuid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (model.Bot, error) {
	var b model.Bot
	var cfg string
	var enable int
	if err := row.Scan(&b.UUID, &b.AdapterName, &cfg, &enable); err != nil {
		return model.Bot{}, err
	}
	if err := json.Unmarshal([]byte(cfg), &b.AdapterConfig); err != nil {
		return model.Bot{}, fmt.Errorf("unmarshal adapter config: %w", err)
	}
	b.Enable = enable != 0
	return b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
