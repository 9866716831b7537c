package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"dayboard/internal/model"
)

// AddSecretList stores a secret list; PasswordHash must already be hashed.
func (s *DB) AddSecretList(ctx context.Context, l model.SecretList) (model.SecretList, error) {
	if s == nil || s.db == nil {
		return model.SecretList{}, ErrDisabled
	}
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" || l.PasswordHash == "" {
		return model.SecretList{}, invalid("secret list needs name and password")
	}
	if l.Color == "" {
		l.Color = model.DefaultGoalColor
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO secret_lists(owner_id, name, color, password_hash) VALUES(?,?,?,?)`,
		l.OwnerID, l.Name, l.Color, l.PasswordHash)
	if isUniqueViolation(err) {
		return model.SecretList{}, ErrConflict
	}
	if err != nil {
		return model.SecretList{}, err
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

func (s *DB) SecretLists(ctx context.Context, owner int64) ([]model.SecretList, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, color FROM secret_lists WHERE owner_id = ? ORDER BY name ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SecretList
	for rows.Next() {
		var l model.SecretList
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SecretList returns one list including its password hash.
func (s *DB) SecretList(ctx context.Context, owner int64, name string) (model.SecretList, error) {
	if s == nil || s.db == nil {
		return model.SecretList{}, ErrDisabled
	}
	var l model.SecretList
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, color, password_hash FROM secret_lists WHERE owner_id = ? AND name = ?`,
		owner, name).Scan(&l.ID, &l.OwnerID, &l.Name, &l.Color, &l.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SecretList{}, ErrNotFound
	}
	return l, err
}
