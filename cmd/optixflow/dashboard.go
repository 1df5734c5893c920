package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/optixflow/internal/analytics"
	"github.com/sandeepkv93/optixflow/internal/app"
	"github.com/sandeepkv93/optixflow/internal/views"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print focus time, completion and suggestions",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Seed projects and tasks from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var availableMinutes int

func init() {
	rootCmd.AddCommand(dashboardCmd, importCmd)
	dashboardCmd.Flags().IntVar(&availableMinutes, "available", 0, "minutes available for suggestions (default from config)")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		snap := a.Engine.Store().Snapshot()
		d := analytics.Build(snap.Tasks, snap.Projects, time.Now())

		avail := availableMinutes
		if avail <= 0 {
			avail = a.Config.Dashboard.AvailableMinutes
		}
		days := make([]views.DayData, 0, len(d.Days))
		for _, day := range d.Days {
			days = append(days, views.DayData{Label: day.Label, Minutes: day.Minutes})
		}
		var suggestions []views.SuggestionData
		for _, l := range analytics.Suggest(snap.Tasks, snap.Projects, avail) {
			suggestions = append(suggestions, views.SuggestionData{
				Title:    l.Title,
				Minutes:  l.EstimatedTime,
				Quadrant: classification(l.Importance, l.IsUrgent),
			})
		}
		alloc := ""
		for _, share := range d.Allocation {
			alloc += fmt.Sprintf("%s %dm\n", share.Name, share.Minutes)
		}
		fmt.Fprintln(cmd.OutOrStdout(), views.RenderDashboardPanel(views.DashboardPanelData{
			FocusHours:     strconv.FormatFloat(analytics.FocusHours(float64(d.TotalFocusMinutes)), 'f', 1, 64),
			Velocity:       strconv.FormatFloat(d.VelocityPerDay, 'f', 1, 64),
			CompletionRate: d.CompletionRate,
			Completed:      d.CompletedUnits,
			Total:          d.TotalUnits,
			Days:           days,
			AllocationView: strings.TrimSuffix(alloc, "\n"),
			Available:      avail,
			Suggestions:    suggestions,
		}))
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Import(ctx, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d projects, %d tasks, %d subtasks\n", res.Projects, res.Tasks, res.Subtasks)
		return nil
	})
}
