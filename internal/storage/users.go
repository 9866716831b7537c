package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dayboard/internal/model"
)

// CreateUser inserts a user; ErrConflict if the username is taken.
func (s *DB) CreateUser(ctx context.Context, username, passwordHash string) (model.User, error) {
	if s == nil || s.db == nil {
		return model.User{}, ErrDisabled
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, password_hash, created_at) VALUES(?,?,?)`,
		username, passwordHash, now.Format(tsLayout))
	if isUniqueViolation(err) {
		return model.User{}, ErrConflict
	}
	if err != nil {
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

const userColumns = `id, username, password_hash, telegram_chat_id, created_at`

func scanUser(r rowScanner) (model.User, error) {
	var u model.User
	var created string
	if err := r.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.TelegramChatID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.CreatedAt, _ = time.Parse(tsLayout, created)
	return u, nil
}

func (s *DB) UserByName(ctx context.Context, username string) (model.User, error) {
	if s == nil || s.db == nil {
		return model.User{}, ErrDisabled
	}
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (s *DB) UserByID(ctx context.Context, id int64) (model.User, error) {
	if s == nil || s.db == nil {
		return model.User{}, ErrDisabled
	}
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// Users returns every user ordered by id. Background jobs iterate it.
func (s *DB) Users(ctx context.Context) ([]model.User, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *DB) SetTelegramChat(ctx context.Context, userID, chatID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return affected(s.db.ExecContext(ctx, `UPDATE users SET telegram_chat_id = ? WHERE id = ?`, chatID, userID))
}

func (s *DB) CreateSession(ctx context.Context, sess model.Session) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id, user_id, token_hash, created_at, expires_at) VALUES(?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.TokenHash,
		sess.CreatedAt.UTC().Format(tsLayout), sess.ExpiresAt.UTC().Format(tsLayout))
	if err == nil {
		s.afterWrite()
	}
	return err
}

// SessionByTokenHash returns the session unless it is missing or expired at now.
func (s *DB) SessionByTokenHash(ctx context.Context, hash string, now time.Time) (model.Session, error) {
	if s == nil || s.db == nil {
		return model.Session{}, ErrDisabled
	}
	var (
		sess             model.Session
		created, expires string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at FROM sessions WHERE token_hash = ?`, hash).
		Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	sess.CreatedAt, _ = time.Parse(tsLayout, created)
	sess.ExpiresAt, _ = time.Parse(tsLayout, expires)
	if !sess.ExpiresAt.After(now) {
		return model.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *DB) DeleteSession(ctx context.Context, hash string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, hash)
	return err
}

// PruneSessions removes sessions expired at now.
func (s *DB) PruneSessions(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC().Format(tsLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
