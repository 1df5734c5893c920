// Package remote translates between the entity model and the backend's row
// representation, and defines the owner-scoped backend contract.
package remote

import (
	"context"
	"time"
)

// Column names shared by the mapper and backend implementations.
const (
	ColTitle           = "title"
	ColImportance      = "importance"
	ColImportanceLevel = "importance_level"
	ColIsUrgent        = "is_urgent"
	ColEstimatedTime   = "estimated_time"
	ColIsCompleted     = "is_completed"
	ColCompletedAt     = "completed_at"
	ColProjectID       = "project_id"
	ColName            = "name"
	ColColor           = "color"
)

type ProjectRow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	UserID string `json:"user_id"`
}

type TaskRow struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Importance    int          `json:"importance"`
	IsUrgent      bool         `json:"is_urgent"`
	EstimatedTime int          `json:"estimated_time"`
	IsCompleted   bool         `json:"is_completed"`
	CompletedAt   *time.Time   `json:"completed_at"`
	ProjectID     *string      `json:"project_id"`
	CreatedAt     *time.Time   `json:"created_at"`
	UserID        string       `json:"user_id"`
	Subtasks      []SubtaskRow `json:"subtasks,omitempty"`
}

type SubtaskRow struct {
	ID              string     `json:"id"`
	TaskID          string     `json:"task_id"`
	Title           string     `json:"title"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at"`
	EstimatedTime   int        `json:"estimated_time"`
	ImportanceLevel int        `json:"importance_level"`
	IsUrgent        bool       `json:"is_urgent"`
}

// Fields is a sparse column → value update. Values are bool, int, string,
// *string or *time.Time; nil pointers clear the column.
type Fields map[string]any

// Backend is the remote store. Every call is scoped to an owner identity;
// rows of other owners are invisible and never modified.
type Backend interface {
	ListProjects(ctx context.Context, owner string) ([]ProjectRow, error)
	// ListTasks returns tasks joined with their subtasks.
	ListTasks(ctx context.Context, owner string) ([]TaskRow, error)

	InsertProject(ctx context.Context, in ProjectRow) (ProjectRow, error)
	UpdateProject(ctx context.Context, owner, id string, f Fields) (ProjectRow, error)
	DeleteProject(ctx context.Context, owner, id string) error

	InsertTask(ctx context.Context, in TaskRow) (TaskRow, error)
	UpdateTasks(ctx context.Context, owner string, ids []string, f Fields) error
	DeleteTasks(ctx context.Context, owner string, ids []string) error

	InsertSubtask(ctx context.Context, owner string, in SubtaskRow) (SubtaskRow, error)
	UpdateSubtasks(ctx context.Context, owner string, ids []string, f Fields) error
	DeleteSubtasks(ctx context.Context, owner string, ids []string) error

	// Upserts insert or replace by id.
	UpsertProjects(ctx context.Context, rows []ProjectRow) error
	UpsertTasks(ctx context.Context, rows []TaskRow) error
	UpsertSubtasks(ctx context.Context, owner string, rows []SubtaskRow) error
}
