package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/optixflow/internal/app"
	"github.com/sandeepkv93/optixflow/internal/update"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal client",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stderr belongs to the terminal while the program runs.
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "optixflow.log")
	}
	return openApp(cmd, cfg, func(ctx context.Context, a *app.App) error {
		snapshots, stop := a.Snapshots()
		defer stop()

		opts := update.Options{
			Snapshots:        snapshots,
			AvailableMinutes: cfg.Dashboard.AvailableMinutes,
		}
		if id := a.Tracker.Identity(); id != nil {
			opts.Identity = id.Email
		}
		program := tea.NewProgram(
			update.NewModel(ctx, a.Engine, a.Toasts, opts),
			tea.WithContext(ctx),
			tea.WithInput(cmd.InOrStdin()),
			tea.WithOutput(cmd.OutOrStdout()),
		)
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("optixflow failed: %w", err)
		}
		return nil
	})
}
