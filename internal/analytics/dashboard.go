// Package analytics derives the dashboard figures and the importance/urgency
// matrix from task snapshots. It is pure: callers pass the clock.
package analytics

import (
	"math"
	"time"

	"github.com/sandeepkv93/optixflow/internal/model"
)

const (
	// WindowDays is the length of the activity window, today included.
	WindowDays = 7

	UnassignedName  = "Unassigned"
	UnassignedColor = "#94a3b8"
)

type DayBucket struct {
	Date    time.Time
	Label   string
	Minutes int
}

// Allocation is completed minutes per project inside the window. ProjectID
// is empty for the unassigned bucket.
type Allocation struct {
	ProjectID string
	Name      string
	Color     string
	Minutes   int
}

type Dashboard struct {
	Days              []DayBucket
	TotalFocusMinutes int
	VelocityPerDay    float64
	CompletedUnits    int
	TotalUnits        int
	// CompletionRate is a rounded percentage.
	CompletionRate int
	TotalTasks     int
	Allocation     []Allocation
}

// FocusHours formats minutes the way the dashboard shows them.
func FocusHours(minutes float64) float64 {
	return math.Round(minutes/60*10) / 10
}

// unit is one countable piece of work: a subtask of a container, or a plain
// task.
type unit struct {
	completed   bool
	completedAt *time.Time
	minutes     int
	projectID   *string
}

func units(tasks []model.Task) []unit {
	var out []unit
	for _, t := range tasks {
		if !t.IsContainer() {
			out = append(out, unit{t.IsCompleted, t.CompletedAt, t.EstimatedTime, t.ProjectID})
			continue
		}
		for _, st := range t.Subtasks {
			out = append(out, unit{st.IsCompleted, st.CompletedAt, st.EstimatedTime, t.ProjectID})
		}
	}
	return out
}

// Build aggregates tasks as of now. Day buckets follow now's location.
func Build(tasks []model.Task, projects []model.Project, now time.Time) Dashboard {
	start := now.AddDate(0, 0, -(WindowDays - 1))
	d := Dashboard{TotalTasks: len(tasks)}

	index := make(map[string]int, WindowDays)
	for i := 0; i < WindowDays; i++ {
		day := now.AddDate(0, 0, i-(WindowDays-1))
		date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
		index[date.Format(time.DateOnly)] = i
		d.Days = append(d.Days, DayBucket{Date: date, Label: date.Format("Mon")})
	}

	byID := make(map[string]model.Project, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
	}
	allocIdx := map[string]int{}

	for _, u := range units(tasks) {
		d.TotalUnits++
		if !u.completed {
			continue
		}
		d.CompletedUnits++
		if u.completedAt == nil {
			continue
		}
		at := u.completedAt.In(now.Location())
		if at.Before(start) || at.After(now) {
			continue
		}
		if i, ok := index[at.Format(time.DateOnly)]; ok {
			d.Days[i].Minutes += u.minutes
		}
		d.TotalFocusMinutes += u.minutes

		key := ""
		if u.projectID != nil {
			if _, ok := byID[*u.projectID]; ok {
				key = *u.projectID
			}
		}
		i, ok := allocIdx[key]
		if !ok {
			a := Allocation{ProjectID: key, Name: UnassignedName, Color: UnassignedColor}
			if p, ok := byID[key]; ok && key != "" {
				a.Name, a.Color = p.Name, p.Color
			}
			i = len(d.Allocation)
			allocIdx[key] = i
			d.Allocation = append(d.Allocation, a)
		}
		d.Allocation[i].Minutes += u.minutes
	}

	d.VelocityPerDay = float64(d.TotalFocusMinutes) / WindowDays
	if d.TotalUnits > 0 {
		d.CompletionRate = int(math.Round(float64(d.CompletedUnits) / float64(d.TotalUnits) * 100))
	}
	return d
}
