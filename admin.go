package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/datadodo/datagate/internal/admin"
	"github.com/datadodo/datagate/internal/format"
	"github.com/datadodo/datagate/internal/guard"
	"github.com/datadodo/datagate/internal/profile"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations (admin accounts only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "users",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE:  runAdminUsers,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "files [uid]",
		Short: "List all files, or one user's files",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAdminFiles,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show platform statistics",
		Args:  cobra.NoArgs,
		RunE:  runAdminStats,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-limit <uid> <limit>",
		Short: "Change a user's file limit",
		Args:  cobra.ExactArgs(2),
		RunE:  runAdminSetLimit,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-type <uid> <user|admin>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE:  runAdminSetType,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <file-id>",
		Short: "Delete any user's file",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdminRm,
	})

	return cmd
}

// adminRoute is the access rule every admin subcommand is checked
// against before running.
var adminRoute = guard.Route{Name: "admin", RequiresAuth: true, RequiresAdmin: true}

// adminApp builds the app and enforces the admin access rule. The
// server re-checks authorization on every call; this gate just gives a
// clear local error before any request is made.
func adminApp(ctx context.Context) (*app, error) {
	a, err := newApp(ctx)
	if err != nil {
		return nil, err
	}

	facts := guard.Facts{
		Initialized:   a.session.Initialized(),
		Authenticated: a.session.IsAuthenticated(),
		Admin:         a.session.IsAdmin(),
	}

	decision, err := guard.Evaluate(facts, adminRoute)
	if err != nil {
		a.Close()
		return nil, err
	}

	switch decision {
	case guard.RedirectSignIn:
		a.Close()
		return nil, fmt.Errorf("not signed in — run 'datagate login'")
	case guard.RedirectHome:
		a.Close()
		return nil, fmt.Errorf("admin access required")
	}

	return a, nil
}

func runAdminUsers(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := adminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.admin.FetchUsers(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(users)
	}

	table := newTable()
	fmt.Fprintln(table, "UID\tEMAIL\tROLE\tFILES\tLIMIT")

	for _, u := range users {
		fmt.Fprintf(table, "%s\t%s\t%s\t%d\t%d\n",
			u.UID, u.Email, u.UserType, u.FileCount, u.FileLimit)
	}

	if err := table.Flush(); err != nil {
		return err
	}

	statusf("%d users (%d admin, %d regular)\n",
		a.admin.TotalUsers(), a.admin.AdminUsers(), a.admin.RegularUsers())

	return nil
}

func runAdminFiles(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := adminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var files []admin.File

	if len(args) == 1 {
		files, err = a.admin.FetchUserFiles(ctx, args[0])
	} else {
		files, err = a.admin.FetchAllFiles(ctx)
	}

	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(files)
	}

	table := newTable()
	fmt.Fprintln(table, "ID\tNAME\tSIZE\tOWNER\tUPLOADED")

	for _, f := range files {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.FileName, format.FileSize(f.FileSize), f.OwnerUID, formatTime(f.UploadedAt))
	}

	return table.Flush()
}

func runAdminStats(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := adminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.admin.FetchStats(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(stats)
	}

	fmt.Printf("Users:   %d (%d admin, %d regular)\n", stats.TotalUsers, stats.AdminUsers, stats.RegularUsers)
	fmt.Printf("Files:   %d\n", stats.TotalFiles)
	fmt.Printf("Storage: %s\n", format.FileSize(stats.TotalStorage))

	return nil
}

func runAdminSetLimit(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	limit, err := strconv.Atoi(args[1])
	if err != nil || limit < 0 {
		return fmt.Errorf("limit must be a non-negative integer")
	}

	a, err := adminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.admin.UpdateUserFileLimit(ctx, args[0], limit); err != nil {
		return err
	}

	statusf("File limit for %s set to %d.\n", args[0], limit)

	return nil
}

func runAdminSetType(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	userType := args[1]
	if userType != profile.TypeUser && userType != profile.TypeAdmin {
		return fmt.Errorf("user type must be %q or %q", profile.TypeUser, profile.TypeAdmin)
	}

	a, err := adminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.admin.UpdateUserType(ctx, args[0], userType); err != nil {
		return err
	}

	statusf("Role for %s set to %s.\n", args[0], userType)

	return nil
}

func runAdminRm(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := adminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.admin.DeleteAnyFile(ctx, args[0]); err != nil {
		return err
	}

	statusf("Deleted %s\n", args[0])

	return nil
}
