package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/sandeepkv93/optixflow/internal/remote"
)

// Timestamps are written fixed-width so that text ordering matches time
// ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	// PRAGMA foreign_keys is per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// OpenSQLite opens path with the named driver, applies migrations and
// returns a ready repository.
func OpenSQLite(driver, path string) (*SQLiteRepository, error) {
	switch driver {
	case "":
		driver = DriverCGO
	case DriverCGO, DriverPure:
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) ListProjects(ctx context.Context, owner string) ([]remote.ProjectRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, color, user_id FROM projects
		WHERE user_id = ? ORDER BY rowid`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]remote.ProjectRow, 0)
	for rows.Next() {
		var p remote.ProjectRow
		if scanErr := rows.Scan(&p.ID, &p.Name, &p.Color, &p.UserID); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertProject(ctx context.Context, in remote.ProjectRow) (remote.ProjectRow, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO projects (id, name, color, user_id) VALUES (?, ?, ?, ?)`,
		in.ID, in.Name, in.Color, in.UserID)
	if err != nil {
		return remote.ProjectRow{}, mapConstraint(err)
	}
	return in, nil
}

func (r *SQLiteRepository) UpdateProject(ctx context.Context, owner, id string, f remote.Fields) (remote.ProjectRow, error) {
	if len(f) > 0 {
		set, args, err := buildSet(f, projectColumns)
		if err != nil {
			return remote.ProjectRow{}, err
		}
		args = append(args, owner, id)
		res, err := r.db.ExecContext(ctx, `UPDATE projects SET `+set+` WHERE user_id = ? AND id = ?`, args...)
		if err != nil {
			return remote.ProjectRow{}, err
		}
		if err := checkRowsAffected(res); err != nil {
			return remote.ProjectRow{}, err
		}
	}
	var p remote.ProjectRow
	err := r.db.QueryRowContext(ctx, `SELECT id, name, color, user_id FROM projects WHERE user_id = ? AND id = ?`, owner, id).
		Scan(&p.ID, &p.Name, &p.Color, &p.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.ProjectRow{}, ErrNotFound
	}
	return p, err
}

// DeleteProject removes the project only. Tasks keep their project_id until
// the caller clears it.
func (r *SQLiteRepository) DeleteProject(ctx context.Context, owner, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE user_id = ? AND id = ?`, owner, id)
	return err
}

func (r *SQLiteRepository) ListTasks(ctx context.Context, owner string) ([]remote.TaskRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, importance, is_urgent, estimated_time, is_completed, completed_at, project_id, created_at, user_id
		FROM tasks WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`, owner)
	if err != nil {
		return nil, err
	}
	out := make([]remote.TaskRow, 0)
	index := make(map[string]int)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		index[task.ID] = len(out)
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	subRows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.task_id, s.title, s.is_completed, s.completed_at, s.estimated_time, s.importance_level, s.is_urgent
		FROM subtasks s JOIN tasks t ON t.id = s.task_id
		WHERE t.user_id = ?
		ORDER BY s.created_at, s.rowid`, owner)
	if err != nil {
		return nil, err
	}
	defer subRows.Close()
	for subRows.Next() {
		sub, scanErr := scanSubtask(subRows)
		if scanErr != nil {
			return nil, scanErr
		}
		if i, ok := index[sub.TaskID]; ok {
			out[i].Subtasks = append(out[i].Subtasks, sub)
		}
	}
	return out, subRows.Err()
}

func (r *SQLiteRepository) InsertTask(ctx context.Context, in remote.TaskRow) (remote.TaskRow, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt == nil {
		now := r.now().UTC()
		in.CreatedAt = &now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, importance, is_urgent, estimated_time, is_completed, completed_at, project_id, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Title, in.Importance, boolInt(in.IsUrgent), in.EstimatedTime, boolInt(in.IsCompleted),
		nullTime(in.CompletedAt), nullString(in.ProjectID), nullTime(in.CreatedAt), in.UserID,
	)
	if err != nil {
		return remote.TaskRow{}, mapConstraint(err)
	}
	in.Subtasks = []remote.SubtaskRow{}
	return in, nil
}

// UpdateTasks applies f to the owner's rows among ids. Missing ids are
// skipped, matching a filtered update.
func (r *SQLiteRepository) UpdateTasks(ctx context.Context, owner string, ids []string, f remote.Fields) error {
	if len(ids) == 0 || len(f) == 0 {
		return nil
	}
	set, args, err := buildSet(f, taskColumns)
	if err != nil {
		return err
	}
	args = append(args, owner)
	args = append(args, stringArgs(ids)...)
	_, err = r.db.ExecContext(ctx, `UPDATE tasks SET `+set+` WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

func (r *SQLiteRepository) DeleteTasks(ctx context.Context, owner string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{owner}, stringArgs(ids)...)
	_, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

// InsertSubtask fails with ErrNotFound when the parent task is missing or
// belongs to someone else.
func (r *SQLiteRepository) InsertSubtask(ctx context.Context, owner string, in remote.SubtaskRow) (remote.SubtaskRow, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO subtasks (id, task_id, title, is_completed, completed_at, estimated_time, importance_level, is_urgent, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM tasks WHERE id = ? AND user_id = ?)`,
		in.ID, in.TaskID, in.Title, boolInt(in.IsCompleted), nullTime(in.CompletedAt), in.EstimatedTime,
		in.ImportanceLevel, boolInt(in.IsUrgent), mustTime(r.now()),
		in.TaskID, owner,
	)
	if err != nil {
		return remote.SubtaskRow{}, mapConstraint(err)
	}
	if err := checkRowsAffected(res); err != nil {
		return remote.SubtaskRow{}, err
	}
	return in, nil
}

func (r *SQLiteRepository) UpdateSubtasks(ctx context.Context, owner string, ids []string, f remote.Fields) error {
	if len(ids) == 0 || len(f) == 0 {
		return nil
	}
	set, args, err := buildSet(f, subtaskColumns)
	if err != nil {
		return err
	}
	args = append(args, stringArgs(ids)...)
	args = append(args, owner)
	_, err = r.db.ExecContext(ctx, `UPDATE subtasks SET `+set+`
		WHERE id IN (`+placeholders(len(ids))+`)
		AND task_id IN (SELECT id FROM tasks WHERE user_id = ?)`, args...)
	return err
}

func (r *SQLiteRepository) DeleteSubtasks(ctx context.Context, owner string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := append(stringArgs(ids), owner)
	_, err := r.db.ExecContext(ctx, `DELETE FROM subtasks
		WHERE id IN (`+placeholders(len(ids))+`)
		AND task_id IN (SELECT id FROM tasks WHERE user_id = ?)`, args...)
	return err
}

// UpsertProjects writes rows in one transaction. A row whose id is held by
// another owner aborts the batch with ErrForbidden.
func (r *SQLiteRepository) UpsertProjects(ctx context.Context, rows []remote.ProjectRow) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range rows {
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO projects (id, name, color, user_id) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color
				WHERE projects.user_id = excluded.user_id`,
				p.ID, p.Name, p.Color, p.UserID)
			if err != nil {
				return err
			}
			if err := forbiddenIfUnchanged(res, "project", p.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertTasks(ctx context.Context, rows []remote.TaskRow) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range rows {
			if t.ID == "" {
				t.ID = uuid.NewString()
			}
			created := t.CreatedAt
			if created == nil {
				now := r.now().UTC()
				created = &now
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO tasks (id, title, importance, is_urgent, estimated_time, is_completed, completed_at, project_id, created_at, user_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					title = excluded.title,
					importance = excluded.importance,
					is_urgent = excluded.is_urgent,
					estimated_time = excluded.estimated_time,
					is_completed = excluded.is_completed,
					completed_at = excluded.completed_at,
					project_id = excluded.project_id
				WHERE tasks.user_id = excluded.user_id`,
				t.ID, t.Title, t.Importance, boolInt(t.IsUrgent), t.EstimatedTime, boolInt(t.IsCompleted),
				nullTime(t.CompletedAt), nullString(t.ProjectID), nullTime(created), t.UserID,
			)
			if err != nil {
				return err
			}
			if err := forbiddenIfUnchanged(res, "task", t.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertSubtasks(ctx context.Context, owner string, rows []remote.SubtaskRow) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range rows {
			if s.ID == "" {
				s.ID = uuid.NewString()
			}
			var existingOwner string
			err := tx.QueryRowContext(ctx, `
				SELECT t.user_id FROM subtasks s JOIN tasks t ON t.id = s.task_id WHERE s.id = ?`, s.ID).Scan(&existingOwner)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return err
			case existingOwner != owner:
				return fmt.Errorf("subtask %s: %w", s.ID, ErrForbidden)
			}

			var parent int
			err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ? AND user_id = ?`, s.TaskID, owner).Scan(&parent)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("subtask %s parent %s: %w", s.ID, s.TaskID, ErrForbidden)
			}
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO subtasks (id, task_id, title, is_completed, completed_at, estimated_time, importance_level, is_urgent, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					task_id = excluded.task_id,
					title = excluded.title,
					is_completed = excluded.is_completed,
					completed_at = excluded.completed_at,
					estimated_time = excluded.estimated_time,
					importance_level = excluded.importance_level,
					is_urgent = excluded.is_urgent`,
				s.ID, s.TaskID, s.Title, boolInt(s.IsCompleted), nullTime(s.CompletedAt), s.EstimatedTime,
				s.ImportanceLevel, boolInt(s.IsUrgent), mustTime(r.now()),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type encoder func(v any) (any, error)

var (
	taskColumns = map[string]encoder{
		remote.ColTitle:         encodeString,
		remote.ColImportance:    encodeInt,
		remote.ColIsUrgent:      encodeBool,
		remote.ColEstimatedTime: encodeInt,
		remote.ColIsCompleted:   encodeBool,
		remote.ColCompletedAt:   encodeTime,
		remote.ColProjectID:     encodeNullString,
	}
	subtaskColumns = map[string]encoder{
		remote.ColTitle:           encodeString,
		remote.ColIsCompleted:     encodeBool,
		remote.ColCompletedAt:     encodeTime,
		remote.ColEstimatedTime:   encodeInt,
		remote.ColImportanceLevel: encodeInt,
		remote.ColIsUrgent:        encodeBool,
	}
	projectColumns = map[string]encoder{
		remote.ColName:  encodeString,
		remote.ColColor: encodeString,
	}
)

// buildSet renders a SET clause for the whitelisted columns in f, in column
// name order.
func buildSet(f remote.Fields, allowed map[string]encoder) (string, []any, error) {
	cols := make([]string, 0, len(f))
	for col := range f {
		if _, ok := allowed[col]; !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrUnknownField, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		v, err := allowed[col](f[col])
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", col, err)
		}
		parts = append(parts, col+" = ?")
		args = append(args, v)
	}
	return strings.Join(parts, ", "), args, nil
}

func encodeString(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("want string, got %T", v)
	}
	return s, nil
}

func encodeInt(v any) (any, error) {
	n, ok := v.(int)
	if !ok {
		return nil, fmt.Errorf("want int, got %T", v)
	}
	return n, nil
}

func encodeBool(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("want bool, got %T", v)
	}
	return boolInt(b), nil
}

func encodeTime(v any) (any, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case *time.Time:
		return nullTime(tv), nil
	case time.Time:
		return mustTime(tv), nil
	}
	return nil, fmt.Errorf("want time, got %T", v)
}

func encodeNullString(v any) (any, error) {
	switch sv := v.(type) {
	case nil:
		return nil, nil
	case *string:
		return nullString(sv), nil
	case string:
		return sv, nil
	}
	return nil, fmt.Errorf("want string, got %T", v)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (remote.TaskRow, error) {
	var out remote.TaskRow
	var urgent, completed int
	var completedAt, projectID sql.NullString
	var created string
	if err := s.Scan(&out.ID, &out.Title, &out.Importance, &urgent, &out.EstimatedTime, &completed,
		&completedAt, &projectID, &created, &out.UserID); err != nil {
		return remote.TaskRow{}, err
	}
	at, err := parseNullableTime(completedAt)
	if err != nil {
		return remote.TaskRow{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return remote.TaskRow{}, err
	}
	out.IsUrgent = urgent == 1
	out.IsCompleted = completed == 1
	out.CompletedAt = at
	out.CreatedAt = &createdAt
	if projectID.Valid {
		pid := projectID.String
		out.ProjectID = &pid
	}
	out.Subtasks = []remote.SubtaskRow{}
	return out, nil
}

func scanSubtask(s scanner) (remote.SubtaskRow, error) {
	var out remote.SubtaskRow
	var urgent, completed int
	var completedAt sql.NullString
	if err := s.Scan(&out.ID, &out.TaskID, &out.Title, &completed, &completedAt, &out.EstimatedTime,
		&out.ImportanceLevel, &urgent); err != nil {
		return remote.SubtaskRow{}, err
	}
	at, err := parseNullableTime(completedAt)
	if err != nil {
		return remote.SubtaskRow{}, err
	}
	out.IsUrgent = urgent == 1
	out.IsCompleted = completed == 1
	out.CompletedAt = at
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func forbiddenIfUnchanged(res sql.Result, entity, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrForbidden)
	}
	return nil
}

// mapConstraint turns a uniqueness violation from either driver into
// ErrConflict.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
