package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/optixflow/internal/model"
)

// DecodeError reports a backend row that does not have the expected shape.
type DecodeError struct {
	Entity string
	ID     string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("remote: decode %s %q: %s: %s", e.Entity, e.ID, e.Field, e.Reason)
}

func ProjectToRow(p model.Project, owner string) ProjectRow {
	return ProjectRow{ID: p.ID, Name: p.Name, Color: p.Color, UserID: owner}
}

func DecodeProject(r ProjectRow) (model.Project, error) {
	if strings.TrimSpace(r.ID) == "" {
		return model.Project{}, &DecodeError{Entity: "project", Field: "id", Reason: "empty"}
	}
	if strings.TrimSpace(r.Name) == "" {
		return model.Project{}, &DecodeError{Entity: "project", ID: r.ID, Field: ColName, Reason: "empty"}
	}
	return model.Project{ID: r.ID, Name: r.Name, Color: r.Color}, nil
}

// TaskToRow maps the task's own columns. Subtasks are carried separately
// and are never written through the task row.
func TaskToRow(t model.Task, owner string) TaskRow {
	return TaskRow{
		ID:            t.ID,
		Title:         t.Title,
		Importance:    int(t.ImportanceLevel),
		IsUrgent:      t.IsUrgent,
		EstimatedTime: t.EstimatedTime,
		IsCompleted:   t.IsCompleted,
		CompletedAt:   copyTime(t.CompletedAt),
		ProjectID:     copyString(t.ProjectID),
		CreatedAt:     copyTime(t.CreatedAt),
		UserID:        owner,
	}
}

func DecodeTask(r TaskRow) (model.Task, error) {
	if strings.TrimSpace(r.ID) == "" {
		return model.Task{}, &DecodeError{Entity: "task", Field: "id", Reason: "empty"}
	}
	imp := model.Importance(r.Importance)
	if !imp.IsValid() {
		return model.Task{}, &DecodeError{Entity: "task", ID: r.ID, Field: ColImportance, Reason: fmt.Sprintf("out of range: %d", r.Importance)}
	}
	if r.EstimatedTime < 0 {
		return model.Task{}, &DecodeError{Entity: "task", ID: r.ID, Field: ColEstimatedTime, Reason: "negative"}
	}
	if r.IsCompleted != (r.CompletedAt != nil) {
		return model.Task{}, &DecodeError{Entity: "task", ID: r.ID, Field: ColCompletedAt, Reason: "disagrees with is_completed"}
	}
	out := model.Task{
		ID:              r.ID,
		Title:           r.Title,
		CreatedAt:       copyTime(r.CreatedAt),
		ImportanceLevel: imp,
		IsUrgent:        r.IsUrgent,
		EstimatedTime:   r.EstimatedTime,
		IsCompleted:     r.IsCompleted,
		ProjectID:       copyString(r.ProjectID),
		CompletedAt:     copyTime(r.CompletedAt),
		Subtasks:        make([]model.Subtask, 0, len(r.Subtasks)),
	}
	for _, sr := range r.Subtasks {
		st, err := DecodeSubtask(sr)
		if err != nil {
			return model.Task{}, err
		}
		out.Subtasks = append(out.Subtasks, st)
	}
	return out, nil
}

func SubtaskToRow(taskID string, s model.Subtask) SubtaskRow {
	return SubtaskRow{
		ID:              s.ID,
		TaskID:          taskID,
		Title:           s.Title,
		IsCompleted:     s.IsCompleted,
		CompletedAt:     copyTime(s.CompletedAt),
		EstimatedTime:   s.EstimatedTime,
		ImportanceLevel: int(s.ImportanceLevel),
		IsUrgent:        s.IsUrgent,
	}
}

func DecodeSubtask(r SubtaskRow) (model.Subtask, error) {
	if strings.TrimSpace(r.ID) == "" {
		return model.Subtask{}, &DecodeError{Entity: "subtask", Field: "id", Reason: "empty"}
	}
	imp := model.Importance(r.ImportanceLevel)
	if !imp.IsValid() {
		return model.Subtask{}, &DecodeError{Entity: "subtask", ID: r.ID, Field: ColImportanceLevel, Reason: fmt.Sprintf("out of range: %d", r.ImportanceLevel)}
	}
	if r.EstimatedTime < 0 {
		return model.Subtask{}, &DecodeError{Entity: "subtask", ID: r.ID, Field: ColEstimatedTime, Reason: "negative"}
	}
	if r.IsCompleted != (r.CompletedAt != nil) {
		return model.Subtask{}, &DecodeError{Entity: "subtask", ID: r.ID, Field: ColCompletedAt, Reason: "disagrees with is_completed"}
	}
	return model.Subtask{
		ID:              r.ID,
		Title:           r.Title,
		IsCompleted:     r.IsCompleted,
		CompletedAt:     copyTime(r.CompletedAt),
		EstimatedTime:   r.EstimatedTime,
		ImportanceLevel: imp,
		IsUrgent:        r.IsUrgent,
	}, nil
}

// DecodeProjects decodes each row independently. Malformed rows are
// left out and returned as skipped.
func DecodeProjects(rows []ProjectRow) (projects []model.Project, skipped []error) {
	projects = make([]model.Project, 0, len(rows))
	for _, r := range rows {
		p, err := DecodeProject(r)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		projects = append(projects, p)
	}
	return projects, skipped
}

// DecodeTasks decodes each task row and each of its subtask rows
// independently. A malformed subtask drops only that subtask.
func DecodeTasks(rows []TaskRow) (tasks []model.Task, skipped []error) {
	tasks = make([]model.Task, 0, len(rows))
	for _, r := range rows {
		subs := r.Subtasks
		r.Subtasks = nil
		t, err := DecodeTask(r)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		for _, sr := range subs {
			st, err := DecodeSubtask(sr)
			if err != nil {
				skipped = append(skipped, err)
				continue
			}
			t.Subtasks = append(t.Subtasks, st)
		}
		tasks = append(tasks, t)
	}
	return tasks, skipped
}

// TaskPatchFields maps only the changed task columns. A subtasks change is
// dropped: subtasks live in their own collection.
func TaskPatchFields(p model.TaskPatch) Fields {
	f := Fields{}
	if p.Title.Set {
		f[ColTitle] = p.Title.Value
	}
	if p.ImportanceLevel.Set {
		f[ColImportance] = int(p.ImportanceLevel.Value)
	}
	if p.IsUrgent.Set {
		f[ColIsUrgent] = p.IsUrgent.Value
	}
	if p.EstimatedTime.Set {
		f[ColEstimatedTime] = p.EstimatedTime.Value
	}
	if p.IsCompleted.Set {
		f[ColIsCompleted] = p.IsCompleted.Value
	}
	if p.ProjectID.Set {
		f[ColProjectID] = copyString(p.ProjectID.Value)
	}
	if p.CompletedAt.Set {
		f[ColCompletedAt] = copyTime(p.CompletedAt.Value)
	}
	return f
}

func SubtaskPatchFields(p model.SubtaskPatch) Fields {
	f := Fields{}
	if p.Title.Set {
		f[ColTitle] = p.Title.Value
	}
	if p.IsCompleted.Set {
		f[ColIsCompleted] = p.IsCompleted.Value
	}
	if p.CompletedAt.Set {
		f[ColCompletedAt] = copyTime(p.CompletedAt.Value)
	}
	if p.EstimatedTime.Set {
		f[ColEstimatedTime] = p.EstimatedTime.Value
	}
	if p.ImportanceLevel.Set {
		f[ColImportanceLevel] = int(p.ImportanceLevel.Value)
	}
	if p.IsUrgent.Set {
		f[ColIsUrgent] = p.IsUrgent.Value
	}
	return f
}

func ProjectPatchFields(p model.ProjectPatch) Fields {
	f := Fields{}
	if p.Name.Set {
		f[ColName] = p.Name.Value
	}
	if p.Color.Set {
		f[ColColor] = p.Color.Value
	}
	return f
}

// CompletionFields is the update written by completion toggles.
func CompletionFields(done bool, at *time.Time) Fields {
	if !done {
		return Fields{ColIsCompleted: false, ColCompletedAt: (*time.Time)(nil)}
	}
	return Fields{ColIsCompleted: true, ColCompletedAt: copyTime(at)}
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
