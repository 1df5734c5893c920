// Package migration moves a guest record into an account the first time the
// account is seen on this device.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandeepkv93/optixflow/internal/guest"
	"github.com/sandeepkv93/optixflow/internal/remote"
)

// GuestRecord is the local record being migrated.
type GuestRecord interface {
	Load() guest.Snapshot
	Clear() error
}

type Options struct {
	Logger *slog.Logger
	// RetainOnFailure keeps the guest record when any upsert failed so the
	// next sign-in retries. Upserts are idempotent by id.
	RetainOnFailure bool
	Now             func() time.Time
}

// Report contains statistics about one migration run.
type Report struct {
	Projects int
	Tasks    int
	Subtasks int
	Errors   []error
	// Skipped is set when there was no guest data.
	Skipped bool
	Cleared bool
	Duration time.Duration
}

func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

type Migrator struct {
	local   GuestRecord
	backend remote.Backend
	logger  *slog.Logger
	retain  bool
	now     func() time.Time
}

func New(local GuestRecord, backend remote.Backend, opts Options) *Migrator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Migrator{
		local:   local,
		backend: backend,
		logger:  opts.Logger,
		retain:  opts.RetainOnFailure,
		now:     opts.Now,
	}
}

// Run uploads projects, then tasks, then subtasks for owner and clears the
// guest record. Step failures are logged and collected; later steps still
// run.
func (m *Migrator) Run(ctx context.Context, owner string) Report {
	start := m.now()
	report := Report{}
	snap := m.local.Load()
	if snap.IsEmpty() {
		report.Skipped = true
		return report
	}

	if len(snap.Projects) > 0 {
		rows := make([]remote.ProjectRow, 0, len(snap.Projects))
		for _, p := range snap.Projects {
			rows = append(rows, remote.ProjectToRow(p, owner))
		}
		if err := m.backend.UpsertProjects(ctx, rows); err != nil {
			report.Errors = append(report.Errors, m.stepFailed("projects", err))
		} else {
			report.Projects = len(rows)
		}
	}

	if len(snap.Tasks) > 0 {
		rows := make([]remote.TaskRow, 0, len(snap.Tasks))
		var subtasks []remote.SubtaskRow
		for _, t := range snap.Tasks {
			rows = append(rows, remote.TaskToRow(t, owner))
			for _, st := range t.Subtasks {
				subtasks = append(subtasks, remote.SubtaskToRow(t.ID, st))
			}
		}
		if err := m.backend.UpsertTasks(ctx, rows); err != nil {
			report.Errors = append(report.Errors, m.stepFailed("tasks", err))
		} else {
			report.Tasks = len(rows)
		}
		if len(subtasks) > 0 {
			if err := m.backend.UpsertSubtasks(ctx, owner, subtasks); err != nil {
				report.Errors = append(report.Errors, m.stepFailed("subtasks", err))
			} else {
				report.Subtasks = len(subtasks)
			}
		}
	}

	report.Duration = m.now().Sub(start)
	if m.retain && len(report.Errors) > 0 {
		m.logger.Warn("guest record retained for retry", "owner", owner, "errors", len(report.Errors))
		return report
	}
	if err := m.local.Clear(); err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("clear guest record: %w", err))
		m.logger.Error("guest record clear failed", "err", err)
		return report
	}
	report.Cleared = true
	m.logger.Info("guest data migrated", "owner", owner,
		"projects", report.Projects, "tasks", report.Tasks, "subtasks", report.Subtasks)
	return report
}

func (m *Migrator) stepFailed(step string, err error) error {
	if !remote.IsBenign(err) {
		m.logger.Error("guest migration step failed", "step", step, "err", err)
	}
	return fmt.Errorf("migrate %s: %w", step, err)
}
