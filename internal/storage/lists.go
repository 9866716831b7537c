package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"dayboard/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureList(ctx context.Context, ex execer, owner int64, name string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO lists(owner_id, name, color, archived) VALUES(?,?,?,0)`,
		owner, name, model.DefaultListColor)
	return err
}

// CreateList creates a user list seeded with a placeholder task.
func (s *DB) CreateList(ctx context.Context, owner int64, name, color string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("list name is required")
	}
	if color == "" {
		color = model.DefaultListColor
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lists(owner_id, name, color, archived) VALUES(?,?,?,0)`, owner, name, color)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks(owner_id, list_name, title, description, source) VALUES(?,?,?,?,?)`,
			owner, name, "Default Task", "This is a default task.", string(model.SourceManual))
		return err
	})
	if err == nil {
		s.afterWrite()
	}
	return err
}

// Lists returns the owner's lists filtered by archive state, by name.
func (s *DB) Lists(ctx context.Context, owner int64, archived bool) ([]ListSummary, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, color, archived FROM lists WHERE owner_id = ? AND archived = ? ORDER BY name ASC`,
		owner, archived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ListSummary
	for rows.Next() {
		var l ListSummary
		if err := rows.Scan(&l.Name, &l.Color, &l.Archived); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *DB) ListInfo(ctx context.Context, owner int64, name string) (ListSummary, error) {
	if s == nil || s.db == nil {
		return ListSummary{}, ErrDisabled
	}
	l := ListSummary{Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT color, archived FROM lists WHERE owner_id = ? AND name = ?`, owner, name).Scan(&l.Color, &l.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return ListSummary{}, ErrNotFound
	}
	return l, err
}

func (s *DB) SetListArchived(ctx context.Context, owner int64, name string, archived bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return affected(s.db.ExecContext(ctx,
		`UPDATE lists SET archived = ? WHERE owner_id = ? AND name = ?`, archived, owner, name))
}

func (s *DB) SetListColor(ctx context.Context, owner int64, name, color string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = model.DefaultListColor
	}
	return affected(s.db.ExecContext(ctx,
		`UPDATE lists SET color = ? WHERE owner_id = ? AND name = ?`, color, owner, name))
}
