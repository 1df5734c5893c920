// Package importer seeds projects and tasks from YAML through the
// synchronization core, so guest and account routing applies as usual.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/state"
	"github.com/sandeepkv93/optixflow/internal/tasksync"
)

var ErrEmpty = errors.New("importer: no projects or tasks found")

// YAMLProject represents a project in the YAML input.
type YAMLProject struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color,omitempty"`
}

// YAMLTask represents a task or subtask. Subtasks inherit importance and
// urgency from their task when they leave them out. Estimates are clamped to
// the minimum duration.
type YAMLTask struct {
	Title      string     `yaml:"title"`
	Importance string     `yaml:"importance,omitempty"`
	Urgent     *bool      `yaml:"urgent,omitempty"`
	Estimate   int        `yaml:"estimate,omitempty"`
	Project    string     `yaml:"project,omitempty"`
	Done       bool       `yaml:"done,omitempty"`
	Subtasks   []YAMLTask `yaml:"subtasks,omitempty"`
}

type YAMLInput struct {
	Projects []YAMLProject `yaml:"projects"`
	Tasks    []YAMLTask    `yaml:"tasks"`
}

// Core is the part of the synchronization core the importer drives.
type Core interface {
	AddProject(ctx context.Context, name, color string) tasksync.Receipt
	AddTask(ctx context.Context, draft model.TaskDraft) tasksync.Receipt
	AddSubtask(ctx context.Context, taskID string, draft model.SubtaskDraft) tasksync.Receipt
	Store() *state.Store
}

type Result struct {
	Projects int
	Tasks    int
	Subtasks int
}

// Parse decodes and validates the input without applying it.
func Parse(data []byte) (YAMLInput, error) {
	var input YAMLInput
	if err := yaml.Unmarshal(data, &input); err != nil {
		return YAMLInput{}, fmt.Errorf("YAML parse error: %w", err)
	}
	if len(input.Projects) == 0 && len(input.Tasks) == 0 {
		return YAMLInput{}, ErrEmpty
	}
	for i, p := range input.Projects {
		if strings.TrimSpace(p.Name) == "" {
			return YAMLInput{}, fmt.Errorf("project %d: name is required", i+1)
		}
	}
	for _, t := range input.Tasks {
		if err := validateTask(t, true); err != nil {
			return YAMLInput{}, err
		}
	}
	return input, nil
}

func validateTask(t YAMLTask, top bool) error {
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("task title is required")
	}
	if t.Importance != "" {
		if _, err := model.ParseImportance(t.Importance); err != nil {
			return fmt.Errorf("task %q: %w", t.Title, err)
		}
	} else if top {
		return fmt.Errorf("task %q: importance is required", t.Title)
	}
	if !top && (len(t.Subtasks) > 0 || t.Project != "") {
		return fmt.Errorf("subtask %q: nested subtasks and projects are not supported", t.Title)
	}
	for _, st := range t.Subtasks {
		if err := validateTask(st, false); err != nil {
			return fmt.Errorf("task %q: %w", t.Title, err)
		}
	}
	return nil
}

// Import parses data and applies it. Tasks may reference projects declared
// in the same input or already present, by name.
func Import(ctx context.Context, core Core, data []byte) (Result, error) {
	input, err := Parse(data)
	if err != nil {
		return Result{}, err
	}

	var res Result
	projectIDs := map[string]string{}
	for _, p := range core.Store().Snapshot().Projects {
		projectIDs[strings.ToLower(p.Name)] = p.ID
	}
	for _, p := range input.Projects {
		rec := core.AddProject(ctx, p.Name, p.Color)
		if !rec.OK() {
			return res, fmt.Errorf("add project %q: %w", p.Name, receiptErr(rec))
		}
		projectIDs[strings.ToLower(p.Name)] = rec.ID
		res.Projects++
	}

	for _, yt := range input.Tasks {
		draft := model.TaskDraft{
			Title:         yt.Title,
			EstimatedTime: model.ClampEstimate(yt.Estimate),
			IsCompleted:   yt.Done,
		}
		draft.ImportanceLevel, _ = model.ParseImportance(yt.Importance)
		if yt.Urgent != nil {
			draft.IsUrgent = *yt.Urgent
		}
		if yt.Project != "" {
			id, ok := projectIDs[strings.ToLower(yt.Project)]
			if !ok {
				return res, fmt.Errorf("task %q: unknown project %q", yt.Title, yt.Project)
			}
			draft.ProjectID = model.Some(model.StringPtr(id))
		} else {
			draft.ProjectID = model.Some[*string](nil)
		}
		rec := core.AddTask(ctx, draft)
		if !rec.OK() {
			return res, fmt.Errorf("add task %q: %w", yt.Title, receiptErr(rec))
		}
		res.Tasks++

		for _, ys := range yt.Subtasks {
			sd := model.SubtaskDraft{
				Title:         ys.Title,
				EstimatedTime: model.ClampEstimate(ys.Estimate),
				IsCompleted:   ys.Done,
			}
			if ys.Importance != "" {
				imp, _ := model.ParseImportance(ys.Importance)
				sd.ImportanceLevel = model.Some(imp)
			}
			if ys.Urgent != nil {
				sd.IsUrgent = model.Some(*ys.Urgent)
			}
			srec := core.AddSubtask(ctx, rec.ID, sd)
			if !srec.OK() {
				return res, fmt.Errorf("add subtask %q: %w", ys.Title, receiptErr(srec))
			}
			res.Subtasks++
		}
	}
	return res, nil
}

func receiptErr(rec tasksync.Receipt) error {
	if rec.Err != nil {
		return rec.Err
	}
	return fmt.Errorf("status %s", rec.Status)
}
