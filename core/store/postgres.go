package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Postgres stores both columns of a user in one user_sessions row.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an already migrated database handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

const (
	qSelectSession = `SELECT session_string FROM user_sessions WHERE user_id = $1`
	qSelectToken   = `SELECT bot_token FROM user_sessions WHERE user_id = $1`
	qUpsertSession = `INSERT INTO user_sessions (user_id, session_string, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET session_string = EXCLUDED.session_string, updated_at = now()`
	qUpsertToken = `INSERT INTO user_sessions (user_id, bot_token, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET bot_token = EXCLUDED.bot_token, updated_at = now()`
	qClearSession = `UPDATE user_sessions SET session_string = NULL, updated_at = now() WHERE user_id = $1`
	qClearToken   = `UPDATE user_sessions SET bot_token = NULL, updated_at = now() WHERE user_id = $1`
	qPrune        = `DELETE FROM user_sessions WHERE user_id = $1 AND session_string IS NULL AND bot_token IS NULL`
)

func (p *Postgres) GetSession(ctx context.Context, userID int64) (string, bool, error) {
	return p.get(ctx, qSelectSession, userID)
}

func (p *Postgres) SaveSession(ctx context.Context, userID int64, blob string) error {
	if _, err := p.db.ExecContext(ctx, qUpsertSession, userID, blob); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveSession(ctx context.Context, userID int64) error {
	return p.clear(ctx, qClearSession, userID)
}

func (p *Postgres) GetBotToken(ctx context.Context, userID int64) (string, bool, error) {
	return p.get(ctx, qSelectToken, userID)
}

func (p *Postgres) SaveBotToken(ctx context.Context, userID int64, token string) error {
	if _, err := p.db.ExecContext(ctx, qUpsertToken, userID, token); err != nil {
		return fmt.Errorf("save bot token: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveBotToken(ctx context.Context, userID int64) error {
	return p.clear(ctx, qClearToken, userID)
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) get(ctx context.Context, query string, userID int64) (string, bool, error) {
	var v sql.NullString
	err := p.db.GetContext(ctx, &v, query, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !v.Valid || v.String == "" {
		return "", false, nil
	}
	return v.String, true, nil
}

func (p *Postgres) clear(ctx context.Context, query string, userID int64) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("clear user %d: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, qPrune, userID); err != nil {
		return fmt.Errorf("prune user %d: %w", userID, err)
	}
	return tx.Commit()
}
