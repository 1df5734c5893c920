package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/optixflow/internal/app"
)

var signupCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create an account; guest data is uploaded to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignup,
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in; guest data is uploaded to the account",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and return to guest mode",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the signed-in account, or guest",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var password string

func init() {
	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd)
	for _, cmd := range []*cobra.Command{signupCmd, loginCmd} {
		cmd.Flags().StringVar(&password, "password", "", "account password (default $OPTIX_PASSWORD)")
	}
}

func resolvePassword() (string, error) {
	if password != "" {
		return password, nil
	}
	if v := os.Getenv("OPTIX_PASSWORD"); v != "" {
		return v, nil
	}
	return "", errors.New("a password is required: pass --password or set OPTIX_PASSWORD")
}

func runSignup(cmd *cobra.Command, args []string) error {
	pw, err := resolvePassword()
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		id, err := a.Auth.SignUp(ctx, args[0], pw)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "signed up as %s\n", id.Email)
		printMigration(out, a)
		return nil
	})
}

func runLogin(cmd *cobra.Command, args []string) error {
	pw, err := resolvePassword()
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		id, err := a.Auth.SignIn(ctx, args[0], pw)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "signed in as %s\n", id.Email)
		printMigration(out, a)
		return nil
	})
}

func printMigration(w io.Writer, a *app.App) {
	r, ok := a.LastMigration()
	if !ok {
		return
	}
	fmt.Fprintf(w, "uploaded guest data: %d projects, %d tasks, %d subtasks\n", r.Projects, r.Tasks, r.Subtasks)
	if err := r.Err(); err != nil {
		fmt.Fprintf(w, "some guest data did not upload: %v\n", err)
	}
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Auth.SignOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signed out")
		return nil
	})
}

func runWhoami(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := cmd.OutOrStdout()
		id := a.Tracker.Identity()
		if id == nil {
			fmt.Fprintln(out, "guest")
			return nil
		}
		fmt.Fprintln(out, id.Email)
		return nil
	})
}
