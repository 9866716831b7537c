package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"dayboard/internal/model"
)

const taskColumns = `t.id, t.owner_id, t.list_name, t.title, t.description, t.due_date,
	t.estimated_time, t.completed, t.position, t.source, COALESCE(l.color, '#ffffff'), COALESCE(l.archived, 0)`

const taskFrom = ` FROM tasks t LEFT JOIN lists l ON l.owner_id = t.owner_id AND l.name = t.list_name`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (model.Task, error) {
	var t model.Task
	var src string
	err := r.Scan(&t.ID, &t.OwnerID, &t.ListName, &t.Title, &t.Description, &t.DueDate,
		&t.EstimatedMins, &t.Completed, &t.Position, &src, &t.Color, &t.Archived)
	t.Source = model.TaskSource(src)
	return t, err
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	defer rows.Close()
	out := make([]model.Task, 0, 8)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddTask inserts a manual task and makes sure its list exists.
func (s *DB) AddTask(ctx context.Context, t model.Task) (model.Task, error) {
	t.ListName = strings.TrimSpace(t.ListName)
	t.Title = strings.TrimSpace(t.Title)
	if t.ListName == "" || t.Title == "" {
		return model.Task{}, invalid("list name and title are required")
	}
	if t.EstimatedMins < 0 {
		t.EstimatedMins = 0
	}
	if t.Source == "" {
		t.Source = model.SourceManual
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureList(ctx, tx, t.OwnerID, t.ListName); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tasks(owner_id, list_name, title, description, due_date, estimated_time, completed, source)
			 VALUES(?,?,?,?,?,?,?,?)`,
			t.OwnerID, t.ListName, t.Title, t.Description, t.DueDate, t.EstimatedMins, t.Completed, string(t.Source))
		if err != nil {
			return err
		}
		t.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	s.afterWrite()
	return t, nil
}

// InsertTaskIfAbsent inserts a promoted task unless the owner already has a
// task with the same title and due date. It reports whether a row was added.
func (s *DB) InsertTaskIfAbsent(ctx context.Context, t model.Task) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	if t.Source == "" || t.Source == model.SourceManual {
		return false, invalid("promoted task needs a non-manual source")
	}
	var inserted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureList(ctx, tx, t.OwnerID, t.ListName); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tasks(owner_id, list_name, title, description, due_date, estimated_time, completed, source)
			 SELECT ?,?,?,?,?,?,0,?
			 WHERE NOT EXISTS (
			   SELECT 1 FROM tasks WHERE owner_id = ? AND title = ? AND due_date IS ?
			 )`,
			t.OwnerID, t.ListName, t.Title, t.Description, t.DueDate, t.EstimatedMins, string(t.Source),
			t.OwnerID, t.Title, t.DueDate)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	return inserted, err
}

func (s *DB) GetTask(ctx context.Context, owner, id int64) (model.Task, error) {
	if s == nil || s.db == nil {
		return model.Task{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.owner_id = ? AND t.id = ?`, owner, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	return t, err
}

// ListTasks returns the tasks of one list, split by completion. Incomplete
// tasks come newest-first.
func (s *DB) ListTasks(ctx context.Context, owner int64, list string) (incomplete, completed []model.Task, err error) {
	if s == nil || s.db == nil {
		return nil, nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+taskFrom+` WHERE t.owner_id = ? AND t.list_name = ? AND t.completed = 0
		 ORDER BY t.id DESC`, owner, list)
	if err != nil {
		return nil, nil, err
	}
	if incomplete, err = collectTasks(rows); err != nil {
		return nil, nil, err
	}
	rows, err = s.db.QueryContext(ctx,
		`SELECT `+taskColumns+taskFrom+` WHERE t.owner_id = ? AND t.list_name = ? AND t.completed = 1
		 ORDER BY t.id ASC`, owner, list)
	if err != nil {
		return nil, nil, err
	}
	if completed, err = collectTasks(rows); err != nil {
		return nil, nil, err
	}
	return incomplete, completed, nil
}

// TasksInRange returns the owner's tasks matching q.
func (s *DB) TasksInRange(ctx context.Context, owner int64, q TaskRange) ([]model.Task, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var sb strings.Builder
	args := make([]any, 0, 8+len(q.ExcludeLists))
	sb.WriteString(`SELECT ` + taskColumns + taskFrom + ` WHERE t.owner_id = ? AND t.due_date BETWEEN ? AND ? AND t.completed = ?`)
	args = append(args, owner, q.From, q.To, q.Completed)
	if len(q.ExcludeLists) > 0 {
		sb.WriteString(` AND t.list_name NOT IN (` + placeholders(len(q.ExcludeLists)) + `)`)
		for _, l := range q.ExcludeLists {
			args = append(args, l)
		}
	}
	if !q.ExcludeFrom.IsZero() && !q.ExcludeTo.IsZero() {
		sb.WriteString(` AND NOT (t.due_date BETWEEN ? AND ?)`)
		args = append(args, q.ExcludeFrom, q.ExcludeTo)
	}
	if q.Completed {
		sb.WriteString(` ORDER BY t.id ASC`)
	} else {
		sb.WriteString(` ORDER BY t.id DESC`)
	}
	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// UpdateTask applies p to one task. Moving a task creates the target list.
// ErrConflict if the edit collides with another promoted task of the same
// title and due date.
func (s *DB) UpdateTask(ctx context.Context, owner, id int64, p TaskPatch) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 7)
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return invalid("title must not be empty")
		}
		sets, args = append(sets, "title = ?"), append(args, title)
	}
	if p.Description != nil {
		sets, args = append(sets, "description = ?"), append(args, *p.Description)
	}
	if p.DueDate != nil {
		sets, args = append(sets, "due_date = ?"), append(args, *p.DueDate)
	}
	if p.Completed != nil {
		sets, args = append(sets, "completed = ?"), append(args, *p.Completed)
	}
	if p.ListName != nil {
		name := strings.TrimSpace(*p.ListName)
		if name == "" {
			return invalid("list name must not be empty")
		}
		p.ListName = &name
		sets, args = append(sets, "list_name = ?"), append(args, name)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, owner, id)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if p.ListName != nil {
			if err := ensureList(ctx, tx, owner, *p.ListName); err != nil {
				return err
			}
		}
		err := affected(tx.ExecContext(ctx,
			`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE owner_id = ? AND id = ?`, args...))
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	})
}

func (s *DB) DeleteTask(ctx context.Context, owner, id int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return affected(s.db.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = ? AND id = ?`, owner, id))
}

// ReorderTasks assigns positions 0..n-1 in the given id order. Ids owned by
// someone else are skipped.
func (s *DB) ReorderTasks(ctx context.Context, owner int64, ids []int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE tasks SET position = ? WHERE owner_id = ? AND id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, i, owner, id); err != nil {
				return err
			}
		}
		return nil
	})
}
