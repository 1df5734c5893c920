package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidImportance  = errors.New("model: invalid importance level")
	ErrInvalidEstimate    = errors.New("model: invalid estimated time")
	ErrCompletionMismatch = errors.New("model: completion flag and timestamp disagree")
)

// MinEstimatedMinutes is the lower bound callers clamp durations to.
const MinEstimatedMinutes = 5

type Importance int

const (
	ImportanceLow  Importance = 1
	ImportanceMid  Importance = 2
	ImportanceHigh Importance = 3
)

func (i Importance) IsValid() bool {
	switch i {
	case ImportanceLow, ImportanceMid, ImportanceHigh:
		return true
	default:
		return false
	}
}

func (i Importance) String() string {
	switch i {
	case ImportanceHigh:
		return "High"
	case ImportanceMid:
		return "Mid"
	case ImportanceLow:
		return "Low"
	default:
		return fmt.Sprintf("Importance(%d)", int(i))
	}
}

// ParseImportance accepts the display names and the numeric levels.
func ParseImportance(raw string) (Importance, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "3", "high", "h":
		return ImportanceHigh, nil
	case "2", "mid", "medium", "m":
		return ImportanceMid, nil
	case "1", "low", "l":
		return ImportanceLow, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidImportance, raw)
	}
}

type Subtask struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	IsCompleted     bool       `json:"isCompleted"`
	EstimatedTime   int        `json:"estimatedTime"`
	ImportanceLevel Importance `json:"importanceLevel"`
	IsUrgent        bool       `json:"isUrgent"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	ImportanceLevel Importance `json:"importanceLevel"`
	IsUrgent        bool       `json:"isUrgent"`
	EstimatedTime   int        `json:"estimatedTime"`
	IsCompleted     bool       `json:"isCompleted"`
	ProjectID       *string    `json:"projectId"`
	Subtasks        []Subtask  `json:"subtasks,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

type Project struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// IsContainer reports whether the task derives its duration from subtasks.
func (t Task) IsContainer() bool {
	return len(t.Subtasks) > 0
}

// EffectiveDuration is the sum of subtask durations for containers and the
// direct estimate otherwise.
func (t Task) EffectiveDuration() int {
	if !t.IsContainer() {
		return t.EstimatedTime
	}
	total := 0
	for _, st := range t.Subtasks {
		total += st.EstimatedTime
	}
	return total
}

// SubtaskIndex returns the index of the subtask with the given id, or -1.
func (t Task) SubtaskIndex(id string) int {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			return i
		}
	}
	return -1
}

// InProject reports whether the task is assigned to projectID.
func (t Task) InProject(projectID string) bool {
	return t.ProjectID != nil && *t.ProjectID == projectID
}

func (t Task) Clone() Task {
	out := t
	out.CreatedAt = cloneTime(t.CreatedAt)
	out.CompletedAt = cloneTime(t.CompletedAt)
	out.ProjectID = cloneString(t.ProjectID)
	if t.Subtasks != nil {
		out.Subtasks = make([]Subtask, len(t.Subtasks))
		for i, st := range t.Subtasks {
			out.Subtasks[i] = st.Clone()
		}
	}
	return out
}

func (s Subtask) Clone() Subtask {
	out := s
	out.CompletedAt = cloneTime(s.CompletedAt)
	return out
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: task id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("model: task title is required")
	}
	if !t.ImportanceLevel.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidImportance, t.ImportanceLevel)
	}
	if t.EstimatedTime < MinEstimatedMinutes {
		return fmt.Errorf("%w: %d", ErrInvalidEstimate, t.EstimatedTime)
	}
	if t.IsCompleted != (t.CompletedAt != nil) {
		return fmt.Errorf("%w: task %s", ErrCompletionMismatch, t.ID)
	}
	seen := make(map[string]bool, len(t.Subtasks))
	for _, st := range t.Subtasks {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("subtask of %s: %w", t.ID, err)
		}
		if seen[st.ID] {
			return fmt.Errorf("model: duplicate subtask id %q in task %s", st.ID, t.ID)
		}
		seen[st.ID] = true
	}
	return nil
}

func (s Subtask) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("model: subtask id is required")
	}
	if strings.TrimSpace(s.Title) == "" {
		return errors.New("model: subtask title is required")
	}
	if !s.ImportanceLevel.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidImportance, s.ImportanceLevel)
	}
	if s.EstimatedTime < MinEstimatedMinutes {
		return fmt.Errorf("%w: %d", ErrInvalidEstimate, s.EstimatedTime)
	}
	if s.IsCompleted != (s.CompletedAt != nil) {
		return fmt.Errorf("%w: subtask %s", ErrCompletionMismatch, s.ID)
	}
	return nil
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("model: project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("model: project name is required")
	}
	return nil
}

// ProjectColors are the preset swatches offered for new projects.
var ProjectColors = []string{"#6366f1", "#10b981", "#f59e0b", "#ef4444", "#0ea5e9", "#a855f7"}

// NextProjectColor cycles through ProjectColors by the number of existing
// projects.
func NextProjectColor(existing int) string {
	if existing < 0 {
		existing = 0
	}
	return ProjectColors[existing%len(ProjectColors)]
}

// ClampEstimate applies the caller-side minimum duration.
func ClampEstimate(minutes int) int {
	if minutes < MinEstimatedMinutes {
		return MinEstimatedMinutes
	}
	return minutes
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// StringPtr returns a pointer to a copy of v.
func StringPtr(v string) *string {
	return &v
}

// TimePtr returns a pointer to a copy of v.
func TimePtr(v time.Time) *time.Time {
	return &v
}
