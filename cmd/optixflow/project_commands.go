package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/optixflow/internal/app"
	"github.com/sandeepkv93/optixflow/internal/model"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>...",
	Short: "Add a project",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProjectAdd,
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List projects with their open work",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runProjectList,
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename <project> <name>...",
	Short: "Rename a project",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runProjectRename,
}

var projectRmCmd = &cobra.Command{
	Use:   "rm <project>",
	Short: "Delete a project; its tasks become unassigned",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectRm,
}

var projectColor string

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectAddCmd, projectListCmd, projectRenameCmd, projectRmCmd)

	projectAddCmd.Flags().StringVarP(&projectColor, "color", "c", "", "swatch color (default: next preset)")
	projectRenameCmd.Flags().StringVarP(&projectColor, "color", "c", "", "new swatch color")
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	name := strings.Join(args, " ")
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		snap := a.Engine.Store().Snapshot()
		for _, p := range snap.Projects {
			if strings.EqualFold(p.Name, name) {
				return fmt.Errorf("project %q already exists", p.Name)
			}
		}
		color := projectColor
		if color == "" {
			color = model.NextProjectColor(len(snap.Projects))
		}
		rec := a.Engine.AddProject(ctx, name, color)
		if err := receiptErr(rec, "add project"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added project %s (%s)\n", name, color)
		return nil
	})
}

func runProjectList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		snap := a.Engine.Store().Snapshot()
		out := cmd.OutOrStdout()
		if len(snap.Projects) == 0 {
			fmt.Fprintln(out, "no projects")
			return nil
		}
		for _, p := range snap.Projects {
			open, minutes := 0, 0
			for _, t := range snap.Tasks {
				if t.InProject(p.ID) && !t.IsCompleted {
					open++
					minutes += t.EffectiveDuration()
				}
			}
			fmt.Fprintf(out, "%s %s %s: %d open, %dm%s\n", p.ID, p.Color, p.Name, open, minutes, syncSuffix(snap.Status(p.ID)))
		}
		return nil
	})
}

func runProjectRename(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(strings.Join(args[1:], " "))
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		p, err := findProject(a.Engine.Store().Snapshot(), args[0])
		if err != nil {
			return err
		}
		patch := model.ProjectPatch{Name: model.Some(name)}
		if projectColor != "" {
			patch.Color = model.Some(projectColor)
		}
		if err := receiptErr(a.Engine.UpdateProject(ctx, p.ID, patch), "rename project"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", p.Name, name)
		return nil
	})
}

func runProjectRm(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		p, err := findProject(a.Engine.Store().Snapshot(), args[0])
		if err != nil {
			return err
		}
		rec := a.Engine.DeleteProject(ctx, p.ID)
		if err := receiptErr(rec, "delete project"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s; %d tasks unassigned\n", p.Name, len(rec.Cascaded))
		return nil
	})
}
