// Package postgres implements sessions.Store and bots.Store against a
// Postgres-compatible server database: DSN-in constructor, connection pool
// tuning, and a PingContext-on-open health check.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/chatmesh/gateway/internal/bots"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/sessions"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	launcher_kind TEXT NOT NULL,
	launcher_id   TEXT NOT NULL,
	create_ts     BIGINT NOT NULL,
	last_interact_ts BIGINT NOT NULL,
	prompt        JSONB NOT NULL,
	default_prompt JSONB NOT NULL,
	token_counts  JSONB NOT NULL,
	status        TEXT NOT NULL,
	PRIMARY KEY (launcher_kind, launcher_id)
);

CREATE TABLE IF NOT EXISTS bots (
	uuid           TEXT PRIMARY KEY,
	adapter_name   TEXT NOT NULL,
	adapter_config JSONB NOT NULL,
	enable         BOOLEAN NOT NULL
);
`

// Config tunes the connection pool.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns production-reasonable pool settings.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// Store bundles sessions.Store and bots.Store over one Postgres
// connection.
type Store struct {
	db       *sql.DB
	Sessions *SessionStore
	Bots     *BotStore
}

// Open connects to dsn, tunes the pool per cfg, applies the schema, and
// verifies connectivity with a bounded PingContext.
func Open(dsn string, cfg Config) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	return &Store{
		db:       db,
		Sessions: &SessionStore{db: db},
		Bots:     &BotStore{db: db},
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SessionStore implements sessions.Store.
type SessionStore struct {
	db *sql.DB
}

var _ sessions.Store = (*SessionStore)(nil)

func (s *SessionStore) Load(ctx context.Context) ([]sessions.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT launcher_kind, launcher_id, create_ts, last_interact_ts, prompt, default_prompt, token_counts, status
		 FROM sessions WHERE status = $1`, string(model.SessionOnGoing))
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	var out []sessions.Record
	for rows.Next() {
		var rec sessions.Record
		var kind, status string
		var promptJSON, defaultPromptJSON, tokenCountsJSON []byte
		if err := rows.Scan(&kind, &rec.LauncherID, &rec.CreateTS, &rec.LastInteractTS, &promptJSON, &defaultPromptJSON, &tokenCountsJSON, &status); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		rec.LauncherKind = model.LauncherType(kind)
		rec.Status = model.SessionStatus(status)
		if err := json.Unmarshal(promptJSON, &rec.Prompt); err != nil {
			return nil, fmt.Errorf("unmarshal prompt: %w", err)
		}
		if err := json.Unmarshal(defaultPromptJSON, &rec.DefaultPrompt); err != nil {
			return nil, fmt.Errorf("unmarshal default prompt: %w", err)
		}
		if err := json.Unmarshal(tokenCountsJSON, &rec.TokenCounts); err != nil {
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
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (launcher_kind, launcher_id) DO UPDATE SET
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
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE launcher_kind = $1 AND launcher_id = $2`, string(launcherKind), launcherID)
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
	row := s.db.QueryRowContext(ctx, `SELECT uuid, adapter_name, adapter_config, enable FROM bots WHERE uuid = $1`, uuid)
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
		`INSERT INTO bots (uuid, adapter_name, adapter_config, enable) VALUES ($1,$2,$3,$4)`,
		bot.UUID, bot.AdapterName, cfg, bot.Enable)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return fmt.Errorf("create bot: %w", bots.ErrNotFound)
		}
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
		`UPDATE bots SET adapter_name = $1, adapter_config = $2, enable = $3 WHERE uuid = $4`,
		bot.AdapterName, cfg, bot.Enable, bot.UUID)
	if err != nil {
		return fmt.Errorf("update bot: %w", err)
	}
	return nil
}

func (s *BotStore) Delete(ctx context.Context, uuid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE uuid = $1`, uuid)
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
	var cfg []byte
	if err := row.Scan(&b.UUID, &b.AdapterName, &cfg, &b.Enable); err != nil {
		return model.Bot{}, err
	}
	if err := json.Unmarshal(cfg, &b.AdapterConfig); err != nil {
		return model.Bot{}, fmt.Errorf("unmarshal adapter config: %w", err)
	}
	return b, nil
}
