package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/harrisonrobin/clarity/pkg/model"
)

var taskColumns = []string{
	"id", "owner_id", "title", "notes", "due_date", "is_completed", "created_at", "updated_at",
}

// TaskStore owns task records. Every operation is scoped by owner; a task of
// another owner is indistinguishable from a missing one.
type TaskStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db.conn, now: time.Now}
}

// WithClock replaces the clock used to stamp createdAt/updatedAt.
func (s *TaskStore) WithClock(now func() time.Time) *TaskStore {
	s.now = now
	return s
}

// Create inserts a new task for ownerID and returns its id. It has no side
// effects beyond the insert.
func (s *TaskStore) Create(ctx context.Context, ownerID string, cmd model.CreateCommand) (int64, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("sqlite: create task: owner id is required")
	}
	query, args, err := psql.Insert("tasks").
		Columns("owner_id", "title", "notes", "due_date", "is_completed", "created_at").
		Values(ownerID, cmd.Title, cmd.Notes, formatTimePtr(cmd.DueDate), false, formatTime(s.now())).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("sqlite: build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: last insert id: %w", err)
	}
	return id, nil
}

func (s *TaskStore) Find(ctx context.Context, id int64, ownerID string) (*model.Task, error) {
	query, args, err := psql.Select(taskColumns...).From("tasks").
		Where(sq.Eq{"id": id, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build select: %w", err)
	}
	task, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: find task: %w", err)
	}
	return task, nil
}

// List returns all tasks of ownerID in insertion order.
func (s *TaskStore) List(ctx context.Context, ownerID string) ([]model.Task, error) {
	query, args, err := psql.Select(taskColumns...).From("tasks").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		out = append(out, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter tasks: %w", err)
	}
	return out, nil
}

// Update replaces the mutable fields and stamps updatedAt.
func (s *TaskStore) Update(ctx context.Context, id int64, ownerID string, cmd model.UpdateCommand) error {
	return s.exec(ctx, "update task", psql.Update("tasks").
		Set("title", cmd.Title).
		Set("notes", cmd.Notes).
		Set("due_date", formatTimePtr(cmd.DueDate)).
		Set("is_completed", cmd.IsCompleted).
		Set("updated_at", formatTime(s.now())).
		Where(sq.Eq{"id": id, "owner_id": ownerID}))
}

// SetCompleted sets the completion flag.
func (s *TaskStore) SetCompleted(ctx context.Context, id int64, ownerID string, completed bool) error {
	return s.exec(ctx, "complete task", psql.Update("tasks").
		Set("is_completed", completed).
		Set("updated_at", formatTime(s.now())).
		Where(sq.Eq{"id": id, "owner_id": ownerID}))
}

// ToggleCompleted negates the completion flag in a single statement and
// returns the task as stored afterwards.
func (s *TaskStore) ToggleCompleted(ctx context.Context, id int64, ownerID string) (*model.Task, error) {
	err := s.exec(ctx, "toggle task", psql.Update("tasks").
		Set("is_completed", sq.Expr("NOT is_completed")).
		Set("updated_at", formatTime(s.now())).
		Where(sq.Eq{"id": id, "owner_id": ownerID}))
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, id, ownerID)
}

func (s *TaskStore) Delete(ctx context.Context, id int64, ownerID string) error {
	return s.exec(ctx, "delete task", psql.Delete("tasks").
		Where(sq.Eq{"id": id, "owner_id": ownerID}))
}

func (s *TaskStore) exec(ctx context.Context, op string, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: build %s: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected (%s): %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t         model.Task
		notes     sql.NullString
		due       sql.NullString
		createdAt string
		updatedAt sql.NullString
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &notes, &due, &t.IsCompleted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if notes.Valid {
		n := notes.String
		t.Notes = &n
	}
	var err error
	if t.DueDate, err = parseNullTime(due); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseNullTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
