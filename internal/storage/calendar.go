package storage

import (
	"context"
	"database/sql"
	"strings"

	"dayboard/internal/model"
	logx "dayboard/pkg/logx"
)

// AddCalendarTask stores a calendar entry. Identical entries (same title,
// date and category) are ignored; the returned bool reports an insert.
func (s *DB) AddCalendarTask(ctx context.Context, c model.CalendarTask) (model.CalendarTask, bool, error) {
	if s == nil || s.db == nil {
		return model.CalendarTask{}, false, ErrDisabled
	}
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" || c.Date.IsZero() {
		return model.CalendarTask{}, false, invalid("calendar task needs title and date")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO calendar_tasks(owner_id, title, date, category) VALUES(?,?,?,?)`,
		c.OwnerID, c.Title, c.Date, c.Category)
	if err != nil {
		return model.CalendarTask{}, false, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return c, false, nil
	}
	c.ID, err = res.LastInsertId()
	s.afterWrite()
	return c, true, err
}

// CalendarTasksBetween returns stored calendar entries dated in [from, to].
func (s *DB) CalendarTasksBetween(ctx context.Context, owner int64, from, to model.Date) ([]model.CalendarTask, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, date, category FROM calendar_tasks
		 WHERE owner_id = ? AND date BETWEEN ? AND ? ORDER BY date ASC, id ASC`, owner, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CalendarTask
	for rows.Next() {
		var c model.CalendarTask
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Date, &c.Category); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CalendarTasksOn returns the entries dated exactly on day.
func (s *DB) CalendarTasksOn(ctx context.Context, owner int64, day model.Date) ([]model.CalendarTask, error) {
	return s.CalendarTasksBetween(ctx, owner, day, day)
}

func (s *DB) MoveCalendarTask(ctx context.Context, owner, id int64, day model.Date) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if day.IsZero() {
		return invalid("date is required")
	}
	err := affected(s.db.ExecContext(ctx,
		`UPDATE calendar_tasks SET date = ? WHERE owner_id = ? AND id = ?`, day, owner, id))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *DB) AddRecurring(ctx context.Context, r model.RecurringTemplate) (model.RecurringTemplate, error) {
	if s == nil || s.db == nil {
		return model.RecurringTemplate{}, ErrDisabled
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return model.RecurringTemplate{}, invalid("title is required")
	}
	if r.Interval <= 0 {
		r.Interval = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recurring_tasks(owner_id, title, frequency, start_date, interval_value) VALUES(?,?,?,?,?)`,
		r.OwnerID, r.Title, string(r.Frequency), r.StartDate, r.Interval)
	if err != nil {
		return model.RecurringTemplate{}, err
	}
	r.ID, err = res.LastInsertId()
	s.afterWrite()
	return r, err
}

// RecurringTemplates returns every template of owner in insertion order.
// A stored start date that does not parse is logged and read as unset.
func (s *DB) RecurringTemplates(ctx context.Context, owner int64) ([]model.RecurringTemplate, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, frequency, start_date, interval_value
		 FROM recurring_tasks WHERE owner_id = ? ORDER BY id ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RecurringTemplate
	for rows.Next() {
		var (
			r     model.RecurringTemplate
			freq  string
			start sql.NullString
			step  sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Title, &freq, &start, &step); err != nil {
			return nil, err
		}
		r.Frequency = model.ParseFrequency(freq)
		r.Interval = int(step.Int64)
		if start.Valid {
			d, perr := model.ParseDate(start.String)
			if perr != nil {
				s.log.Warn("recurring template has bad start date",
					logx.Int64("id", r.ID), logx.String("start_date", start.String))
			}
			r.StartDate = d
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
