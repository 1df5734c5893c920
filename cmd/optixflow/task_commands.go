package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/optixflow/internal/app"
	"github.com/sandeepkv93/optixflow/internal/commands"
	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/state"
	"github.com/sandeepkv93/optixflow/internal/tasksync"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>...",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List tasks with their subtasks",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runTaskList,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <task>",
	Short: "Toggle a task's completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDone,
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task>",
	Short: "Change a task's fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskUpdate,
}

var taskRmCmd = &cobra.Command{
	Use:     "rm <task>",
	Short:   "Delete a task and its subtasks",
	Aliases: []string{"delete"},
	Args:    cobra.ExactArgs(1),
	RunE:    runTaskRm,
}

var (
	taskImportance string
	taskUrgent     bool
	taskEstimate   int
	taskProject    string
	taskTitle      string
	taskCascade    bool
	taskListOpen   bool
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskUpdateCmd, taskRmCmd)

	for _, cmd := range []*cobra.Command{taskAddCmd, taskUpdateCmd} {
		cmd.Flags().StringVarP(&taskImportance, "importance", "i", "mid", "importance: high, mid or low")
		cmd.Flags().BoolVarP(&taskUrgent, "urgent", "u", false, "mark as urgent")
		cmd.Flags().IntVarP(&taskEstimate, "estimate", "e", commands.DefaultEstimate, "estimated minutes")
		cmd.Flags().StringVarP(&taskProject, "project", "p", "", "project name or id")
	}
	taskUpdateCmd.Flags().StringVarP(&taskTitle, "title", "t", "", "new title")
	taskDoneCmd.Flags().BoolVar(&taskCascade, "cascade", false, "also complete every subtask")
	taskListCmd.Flags().StringVarP(&taskProject, "project", "p", "", "only tasks in this project")
	taskListCmd.Flags().BoolVar(&taskListOpen, "open", false, "only incomplete tasks")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	importance, err := model.ParseImportance(taskImportance)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		draft := model.TaskDraft{
			Title:           strings.Join(args, " "),
			ImportanceLevel: importance,
			IsUrgent:        taskUrgent,
			EstimatedTime:   model.ClampEstimate(taskEstimate),
			ProjectID:       model.Some[*string](nil),
		}
		if taskProject != "" {
			p, err := findProject(a.Engine.Store().Snapshot(), taskProject)
			if err != nil {
				return err
			}
			draft.ProjectID = model.Some(model.StringPtr(p.ID))
		}
		rec := a.Engine.AddTask(ctx, draft)
		if err := receiptErr(rec, "add task"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added task %s: %s\n", rec.ID, draft.Title)
		return nil
	})
}

func runTaskList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		snap := a.Engine.Store().Snapshot()
		var projectID string
		if taskProject != "" {
			p, err := findProject(snap, taskProject)
			if err != nil {
				return err
			}
			projectID = p.ID
		}
		out := cmd.OutOrStdout()
		shown := 0
		for _, t := range snap.Tasks {
			if projectID != "" && !t.InProject(projectID) {
				continue
			}
			if taskListOpen && t.IsCompleted {
				continue
			}
			printTask(out, snap, t)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "no tasks")
		}
		return nil
	})
}

func printTask(w io.Writer, snap state.Snapshot, t model.Task) {
	line := fmt.Sprintf("%s %s %s (%s, %dm)", t.ID, checkbox(t.IsCompleted), t.Title, classification(t.ImportanceLevel, t.IsUrgent), t.EffectiveDuration())
	if t.ProjectID != nil {
		if p, ok := snap.Project(*t.ProjectID); ok {
			line += " #" + p.Name
		}
	}
	fmt.Fprintln(w, line+syncSuffix(snap.Status(t.ID)))
	for _, s := range t.Subtasks {
		fmt.Fprintf(w, "    %s %s %s (%s, %dm)%s\n", s.ID, checkbox(s.IsCompleted), s.Title,
			classification(s.ImportanceLevel, s.IsUrgent), s.EstimatedTime, syncSuffix(snap.Status(s.ID)))
	}
}

func runTaskDone(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		task, err := findTask(a.Engine.Store().Snapshot(), args[0])
		if err != nil {
			return err
		}
		rec := a.Engine.ToggleTaskCompletion(ctx, task.ID, tasksync.ToggleOptions{Cascade: taskCascade})
		if err := receiptErr(rec, "toggle task"); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if task.IsCompleted {
			fmt.Fprintf(out, "reopened %s\n", task.Title)
			return nil
		}
		fmt.Fprintf(out, "completed %s\n", task.Title)
		if n := len(rec.Cascaded); n > 0 {
			fmt.Fprintf(out, "completed %d subtasks\n", n)
		}
		return nil
	})
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		snap := a.Engine.Store().Snapshot()
		task, err := findTask(snap, args[0])
		if err != nil {
			return err
		}
		var patch model.TaskPatch
		flags := cmd.Flags()
		if flags.Changed("title") {
			if strings.TrimSpace(taskTitle) == "" {
				return errors.New("title cannot be empty")
			}
			patch.Title = model.Some(taskTitle)
		}
		if flags.Changed("importance") {
			imp, err := model.ParseImportance(taskImportance)
			if err != nil {
				return err
			}
			patch.ImportanceLevel = model.Some(imp)
		}
		if flags.Changed("urgent") {
			patch.IsUrgent = model.Some(taskUrgent)
		}
		if flags.Changed("estimate") {
			if task.IsContainer() {
				return fmt.Errorf("%s has subtasks; its estimate is their sum", task.Title)
			}
			patch.EstimatedTime = model.Some(model.ClampEstimate(taskEstimate))
		}
		if flags.Changed("project") {
			switch strings.ToLower(strings.TrimSpace(taskProject)) {
			case "", "none":
				patch.ProjectID = model.Some[*string](nil)
			default:
				p, err := findProject(snap, taskProject)
				if err != nil {
					return err
				}
				patch.ProjectID = model.Some(model.StringPtr(p.ID))
			}
		}
		if patch.IsEmpty() {
			return errors.New("nothing to update")
		}
		if err := receiptErr(a.Engine.UpdateTask(ctx, task.ID, patch), "update task"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", task.Title)
		return nil
	})
}

func runTaskRm(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		task, err := findTask(a.Engine.Store().Snapshot(), args[0])
		if err != nil {
			return err
		}
		if err := receiptErr(a.Engine.DeleteTask(ctx, task.ID), "delete task"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", task.Title)
		return nil
	})
}

// receiptErr turns a receipt that did not land into an error.
func receiptErr(rec tasksync.Receipt, op string) error {
	if rec.Err != nil {
		return fmt.Errorf("%s: %w", op, rec.Err)
	}
	if !rec.OK() {
		return fmt.Errorf("%s: applied locally but did not sync", op)
	}
	return nil
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func classification(imp model.Importance, urgent bool) string {
	if urgent {
		return imp.String() + ", urgent"
	}
	return imp.String()
}

func syncSuffix(st state.SyncStatus) string {
	switch st {
	case state.SyncPending, state.SyncFailed:
		return " [" + st.String() + "]"
	default:
		return ""
	}
}
