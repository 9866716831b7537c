package storage

import (
	"context"
	"database/sql"

	"dayboard/internal/model"
)

// BackfillHabits inserts zero rows for every day after the owner's latest
// habit row up to and including today. With no rows yet, only today is
// added. It returns the number of rows created.
func (s *DB) BackfillHabits(ctx context.Context, owner int64, today model.Date) (int, error) {
	created := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var last sql.NullString
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(habit_date) FROM habits WHERE owner_id = ?`, owner).Scan(&last); err != nil {
			return err
		}
		from := today.AddDays(-1)
		if last.Valid {
			d, err := model.ParseDate(last.String)
			if err != nil {
				return err
			}
			from = d
		}
		for d := from.AddDays(1); !d.After(today); d = d.AddDays(1) {
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO habits(owner_id, habit_date) VALUES(?,?)`, owner, d)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			created += int(n)
		}
		return nil
	})
	return created, err
}

// Habits returns all rows of owner in ascending date order.
func (s *DB) Habits(ctx context.Context, owner int64) ([]model.HabitDay, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, habit_date, alcohol, smoke, sport FROM habits
		 WHERE owner_id = ? ORDER BY habit_date ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.HabitDay
	for rows.Next() {
		var h model.HabitDay
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Date, &h.Alcohol, &h.Smoke, &h.Sport); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PutHabit upserts one day's counters.
func (s *DB) PutHabit(ctx context.Context, h model.HabitDay) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if h.Date.IsZero() {
		return invalid("habit date is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO habits(owner_id, habit_date, alcohol, smoke, sport) VALUES(?,?,?,?,?)
		 ON CONFLICT(owner_id, habit_date) DO UPDATE SET
		   alcohol = excluded.alcohol, smoke = excluded.smoke, sport = excluded.sport`,
		h.OwnerID, h.Date, h.Alcohol, h.Smoke, h.Sport)
	if err == nil {
		s.afterWrite()
	}
	return err
}
