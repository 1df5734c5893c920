package analytics

import (
	"fmt"
	"slices"

	"github.com/sandeepkv93/optixflow/internal/model"
)

// Leaf is a schedulable item: a subtask of a container task, or a task
// without subtasks.
type Leaf struct {
	ID            string
	Title         string
	EstimatedTime int
	IsCompleted   bool
	Importance    model.Importance
	IsUrgent      bool
	ParentID      string
	ParentTitle   string
	ProjectID     *string
	ProjectName   string
}

func (l Leaf) IsSubtask() bool { return l.ParentID != "" }

// Score ranks leaves: importance dominates, urgency breaks ties.
func Score(l Leaf) int {
	s := int(l.Importance) * 10
	if l.IsUrgent {
		s++
	}
	return s
}

// FilterByProject keeps tasks of projectID; nil keeps everything.
func FilterByProject(tasks []model.Task, projectID *string) []model.Task {
	if projectID == nil {
		return tasks
	}
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.InProject(*projectID) {
			out = append(out, t)
		}
	}
	return out
}

// Leaves flattens tasks in order. A dangling project id yields no name.
func Leaves(tasks []model.Task, projects []model.Project) []Leaf {
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	var out []Leaf
	for _, t := range tasks {
		var projectName string
		if t.ProjectID != nil {
			projectName = names[*t.ProjectID]
		}
		if !t.IsContainer() {
			out = append(out, Leaf{
				ID: t.ID, Title: t.Title, EstimatedTime: t.EstimatedTime, IsCompleted: t.IsCompleted,
				Importance: t.ImportanceLevel, IsUrgent: t.IsUrgent,
				ProjectID: t.ProjectID, ProjectName: projectName,
			})
			continue
		}
		for _, st := range t.Subtasks {
			out = append(out, Leaf{
				ID: st.ID, Title: st.Title, EstimatedTime: st.EstimatedTime, IsCompleted: st.IsCompleted,
				Importance: st.ImportanceLevel, IsUrgent: st.IsUrgent,
				ParentID: t.ID, ParentTitle: t.Title,
				ProjectID: t.ProjectID, ProjectName: projectName,
			})
		}
	}
	return out
}

type Cell struct {
	Importance model.Importance
	Urgent     bool
	Items      []Leaf
}

func (c Cell) ID() string {
	kind := "normal"
	if c.Urgent {
		kind = "urgent"
	}
	return fmt.Sprintf("cell-%d-%s", c.Importance, kind)
}

func (c Cell) Minutes() int {
	total := 0
	for _, l := range c.Items {
		total += l.EstimatedTime
	}
	return total
}

// Matrix places incomplete leaves into six cells, High first, urgent before
// normal. Within a cell leaves keep their task order.
func Matrix(tasks []model.Task, projects []model.Project) []Cell {
	cells := make([]Cell, 0, 6)
	for _, imp := range []model.Importance{model.ImportanceHigh, model.ImportanceMid, model.ImportanceLow} {
		cells = append(cells, Cell{Importance: imp, Urgent: true}, Cell{Importance: imp})
	}
	for _, l := range Leaves(tasks, projects) {
		if l.IsCompleted {
			continue
		}
		for i := range cells {
			if cells[i].Importance == l.Importance && cells[i].Urgent == l.IsUrgent {
				cells[i].Items = append(cells[i].Items, l)
				break
			}
		}
	}
	return cells
}

// Suggest lists incomplete leaves that fit in the available minutes, best
// score first.
func Suggest(tasks []model.Task, projects []model.Project, availableMinutes int) []Leaf {
	var out []Leaf
	for _, l := range Leaves(tasks, projects) {
		if !l.IsCompleted && l.EstimatedTime <= availableMinutes {
			out = append(out, l)
		}
	}
	slices.SortStableFunc(out, func(a, b Leaf) int {
		return Score(b) - Score(a)
	})
	return out
}
