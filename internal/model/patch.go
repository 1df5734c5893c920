package model

import "time"

// Opt distinguishes "leave unchanged" from "set", including setting a
// nullable field to nil.
type Opt[T any] struct {
	Set   bool
	Value T
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, Value: v}
}

func (o Opt[T]) Or(fallback T) T {
	if o.Set {
		return o.Value
	}
	return fallback
}

type TaskPatch struct {
	Title           Opt[string]
	ImportanceLevel Opt[Importance]
	IsUrgent        Opt[bool]
	EstimatedTime   Opt[int]
	IsCompleted     Opt[bool]
	CompletedAt     Opt[*time.Time]
	ProjectID       Opt[*string]
	Subtasks        Opt[[]Subtask]
}

func (p TaskPatch) IsEmpty() bool {
	return !p.Title.Set && !p.ImportanceLevel.Set && !p.IsUrgent.Set && !p.EstimatedTime.Set &&
		!p.IsCompleted.Set && !p.CompletedAt.Set && !p.ProjectID.Set && !p.Subtasks.Set
}

// Apply shallow-merges the set fields into t.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.ImportanceLevel.Set {
		t.ImportanceLevel = p.ImportanceLevel.Value
	}
	if p.IsUrgent.Set {
		t.IsUrgent = p.IsUrgent.Value
	}
	if p.EstimatedTime.Set {
		t.EstimatedTime = p.EstimatedTime.Value
	}
	if p.IsCompleted.Set {
		t.IsCompleted = p.IsCompleted.Value
	}
	if p.CompletedAt.Set {
		t.CompletedAt = cloneTime(p.CompletedAt.Value)
	}
	if p.ProjectID.Set {
		t.ProjectID = cloneString(p.ProjectID.Value)
	}
	if p.Subtasks.Set {
		t.Subtasks = make([]Subtask, len(p.Subtasks.Value))
		for i, st := range p.Subtasks.Value {
			t.Subtasks[i] = st.Clone()
		}
	}
	return t
}

type SubtaskPatch struct {
	Title           Opt[string]
	IsCompleted     Opt[bool]
	CompletedAt     Opt[*time.Time]
	EstimatedTime   Opt[int]
	ImportanceLevel Opt[Importance]
	IsUrgent        Opt[bool]
}

func (p SubtaskPatch) IsEmpty() bool {
	return !p.Title.Set && !p.IsCompleted.Set && !p.CompletedAt.Set && !p.EstimatedTime.Set &&
		!p.ImportanceLevel.Set && !p.IsUrgent.Set
}

func (p SubtaskPatch) Apply(s Subtask) Subtask {
	if p.Title.Set {
		s.Title = p.Title.Value
	}
	if p.IsCompleted.Set {
		s.IsCompleted = p.IsCompleted.Value
	}
	if p.CompletedAt.Set {
		s.CompletedAt = cloneTime(p.CompletedAt.Value)
	}
	if p.EstimatedTime.Set {
		s.EstimatedTime = p.EstimatedTime.Value
	}
	if p.ImportanceLevel.Set {
		s.ImportanceLevel = p.ImportanceLevel.Value
	}
	if p.IsUrgent.Set {
		s.IsUrgent = p.IsUrgent.Value
	}
	return s
}

type ProjectPatch struct {
	Name  Opt[string]
	Color Opt[string]
}

func (p ProjectPatch) IsEmpty() bool {
	return !p.Name.Set && !p.Color.Set
}

func (p ProjectPatch) Apply(pr Project) Project {
	if p.Name.Set {
		pr.Name = p.Name.Value
	}
	if p.Color.Set {
		pr.Color = p.Color.Value
	}
	return pr
}

// TaskDraft is the input to task creation. ID may be empty; ProjectID left
// unset falls back to the active project filter.
type TaskDraft struct {
	ID              string
	Title           string
	CreatedAt       *time.Time
	ImportanceLevel Importance
	IsUrgent        bool
	EstimatedTime   int
	IsCompleted     bool
	CompletedAt     *time.Time
	ProjectID       Opt[*string]
	Subtasks        []Subtask
}

// SubtaskDraft is the input to subtask creation. Importance and urgency
// default to the parent's values.
type SubtaskDraft struct {
	Title           string
	EstimatedTime   int
	ImportanceLevel Opt[Importance]
	IsUrgent        Opt[bool]
	IsCompleted     bool
	CompletedAt     *time.Time
}
