package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/optixflow/internal/app"
	"github.com/sandeepkv93/optixflow/internal/commands"
	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/tasksync"
)

var subtaskCmd = &cobra.Command{
	Use:     "subtask",
	Short:   "Manage the subtasks of a task",
	Aliases: []string{"sub"},
}

var subtaskAddCmd = &cobra.Command{
	Use:   "add <task> <title>...",
	Short: "Add a subtask; classification defaults to the parent's",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSubtaskAdd,
}

var subtaskDoneCmd = &cobra.Command{
	Use:   "done <task> <subtask>",
	Short: "Toggle a subtask's completion",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubtaskDone,
}

var subtaskRmCmd = &cobra.Command{
	Use:   "rm <task> <subtask>",
	Short: "Delete a subtask",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubtaskRm,
}

var (
	subtaskImportance string
	subtaskUrgent     bool
	subtaskEstimate   int
)

func init() {
	rootCmd.AddCommand(subtaskCmd)
	subtaskCmd.AddCommand(subtaskAddCmd, subtaskDoneCmd, subtaskRmCmd)

	subtaskAddCmd.Flags().StringVarP(&subtaskImportance, "importance", "i", "", "importance: high, mid or low")
	subtaskAddCmd.Flags().BoolVarP(&subtaskUrgent, "urgent", "u", false, "mark as urgent")
	subtaskAddCmd.Flags().IntVarP(&subtaskEstimate, "estimate", "e", commands.DefaultEstimate, "estimated minutes")
}

func runSubtaskAdd(cmd *cobra.Command, args []string) error {
	draft := model.SubtaskDraft{
		Title:         strings.Join(args[1:], " "),
		EstimatedTime: model.ClampEstimate(subtaskEstimate),
	}
	if cmd.Flags().Changed("importance") {
		imp, err := model.ParseImportance(subtaskImportance)
		if err != nil {
			return err
		}
		draft.ImportanceLevel = model.Some(imp)
	}
	if cmd.Flags().Changed("urgent") {
		draft.IsUrgent = model.Some(subtaskUrgent)
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		task, err := findTask(a.Engine.Store().Snapshot(), args[0])
		if err != nil {
			return err
		}
		rec := a.Engine.AddSubtask(ctx, task.ID, draft)
		if err := receiptErr(rec, "add subtask"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added subtask %s to %s: %s\n", rec.ID, task.Title, draft.Title)
		return nil
	})
}

func runSubtaskDone(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		task, err := findTask(a.Engine.Store().Snapshot(), args[0])
		if err != nil {
			return err
		}
		sub, err := findSubtask(task, args[1])
		if err != nil {
			return err
		}
		rec := a.Engine.ToggleSubtaskCompletion(ctx, task.ID, sub.ID, tasksync.SubtaskToggleOptions{})
		if err := receiptErr(rec, "toggle subtask"); err != nil {
			return err
		}
		verb := "completed"
		if sub.IsCompleted {
			verb = "reopened"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, sub.Title)
		return nil
	})
}

func runSubtaskRm(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		task, err := findTask(a.Engine.Store().Snapshot(), args[0])
		if err != nil {
			return err
		}
		sub, err := findSubtask(task, args[1])
		if err != nil {
			return err
		}
		if err := receiptErr(a.Engine.DeleteSubtask(ctx, task.ID, sub.ID), "delete subtask"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", sub.Title)
		return nil
	})
}
