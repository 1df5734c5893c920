package main

import (
	"fmt"
	"strings"

	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/state"
)

// findTask matches ref against task ids, then titles, then a unique title
// prefix. Matching on titles ignores case.
func findTask(snap state.Snapshot, ref string) (model.Task, error) {
	if task, ok := snap.Task(ref); ok {
		return task, nil
	}
	titles := make([]string, len(snap.Tasks))
	for i, t := range snap.Tasks {
		titles[i] = t.Title
	}
	i, err := match("task", ref, titles)
	if err != nil {
		return model.Task{}, err
	}
	return snap.Tasks[i], nil
}

func findSubtask(task model.Task, ref string) (model.Subtask, error) {
	if i := task.SubtaskIndex(ref); i >= 0 {
		return task.Subtasks[i], nil
	}
	titles := make([]string, len(task.Subtasks))
	for i, s := range task.Subtasks {
		titles[i] = s.Title
	}
	i, err := match("subtask", ref, titles)
	if err != nil {
		return model.Subtask{}, err
	}
	return task.Subtasks[i], nil
}

func findProject(snap state.Snapshot, ref string) (model.Project, error) {
	if p, ok := snap.Project(ref); ok {
		return p, nil
	}
	names := make([]string, len(snap.Projects))
	for i, p := range snap.Projects {
		names[i] = p.Name
	}
	i, err := match("project", ref, names)
	if err != nil {
		return model.Project{}, err
	}
	return snap.Projects[i], nil
}

func match(kind, ref string, candidates []string) (int, error) {
	needle := strings.ToLower(strings.TrimSpace(ref))
	if needle == "" {
		return -1, fmt.Errorf("%s reference is empty", kind)
	}
	for i, c := range candidates {
		if strings.ToLower(c) == needle {
			return i, nil
		}
	}
	found := -1
	for i, c := range candidates {
		if !strings.HasPrefix(strings.ToLower(c), needle) {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("%s %q is ambiguous", kind, ref)
		}
		found = i
	}
	if found < 0 {
		return -1, fmt.Errorf("%s %q not found", kind, ref)
	}
	return found, nil
}
