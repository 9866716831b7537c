package storage

import (
	"context"
	"database/sql"
	"errors"

	"dayboard/internal/model"
)

// ClaimMarker atomically records that operation name ran for owner on day.
// It returns false if the marker already holds day, true if this call moved
// it (or created it). Concurrent callers for the same day see exactly one true.
func (s *DB) ClaimMarker(ctx context.Context, owner int64, name string, day model.Date) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_markers(owner_id, name, last_run) VALUES(?,?,?)
		 ON CONFLICT(owner_id, name) DO UPDATE SET last_run = excluded.last_run
		 WHERE execution_markers.last_run <> excluded.last_run`,
		owner, name, day)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Marker returns the stored marker; ErrNotFound if the operation never ran.
func (s *DB) Marker(ctx context.Context, owner int64, name string) (model.ExecutionMarker, error) {
	if s == nil || s.db == nil {
		return model.ExecutionMarker{}, ErrDisabled
	}
	m := model.ExecutionMarker{OwnerID: owner, Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT last_run FROM execution_markers WHERE owner_id = ? AND name = ?`, owner, name).Scan(&m.LastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExecutionMarker{}, ErrNotFound
	}
	return m, err
}

// ResetMarker forgets a marker so the operation may run again today.
func (s *DB) ResetMarker(ctx context.Context, owner int64, name string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM execution_markers WHERE owner_id = ? AND name = ?`, owner, name)
	return err
}
