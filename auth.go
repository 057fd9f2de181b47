package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newSignupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a new account with email and password",
		RunE:  runSignup,
	}

	cmd.Flags().String("email", "", "account email address")
	cmd.Flags().String("password", "", "account password (prompted if omitted)")

	return cmd
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password, or through the browser",
		RunE:  runLogin,
	}

	cmd.Flags().String("email", "", "account email address")
	cmd.Flags().String("password", "", "account password (prompted if omitted)")
	cmd.Flags().Bool("browser", false, "sign in through the browser instead")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the saved credential",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user and quota",
		RunE:  runWhoami,
	}
}

func runSignup(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	email, password, err := credentialsFromFlags(cmd)
	if err != nil {
		return err
	}

	if err := a.session.SignUp(ctx, email, password); err != nil {
		return err
	}

	statusf("Account created. Signed in as %s.\n", email)

	return nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	browser, _ := cmd.Flags().GetBool("browser")
	if browser {
		if err := a.session.SignInWithBrowser(ctx, openInBrowser); err != nil {
			return err
		}
	} else {
		email, password, err := credentialsFromFlags(cmd)
		if err != nil {
			return err
		}

		if err := a.session.SignIn(ctx, email, password); err != nil {
			return err
		}
	}

	id := a.session.Identity()
	statusf("Signed in as %s.\n", id.Email)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Local credential removal always happens; a provider failure is
	// reported but does not leave the user signed in.
	signOutErr := a.session.SignOut(ctx)

	statusf("Signed out.\n")

	return signOutErr
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	UserType  string `json:"user_type"`
	FileCount int    `json:"file_count"`
	FileLimit int    `json:"file_limit"`
}

func runWhoami(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.session.IsAuthenticated() {
		return fmt.Errorf("not signed in — run 'datagate login'")
	}

	id := a.session.Identity()
	out := whoamiOutput{
		UID:       id.UID,
		Email:     id.Email,
		UserType:  a.session.UserType(),
		FileCount: a.session.FileCount(),
		FileLimit: a.session.FileLimit(),
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Printf("%s (%s)\n", out.Email, out.UID)
	fmt.Printf("Role:  %s\n", out.UserType)
	fmt.Printf("Files: %d of %d\n", out.FileCount, out.FileLimit)

	return nil
}

// credentialsFromFlags reads --email/--password, prompting interactively
// for whichever is missing. The password prompt never echoes.
func credentialsFromFlags(cmd *cobra.Command) (string, string, error) {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	if email == "" {
		fmt.Fprint(os.Stderr, "Email: ")

		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("reading email: %w", err)
		}

		email = strings.TrimSpace(line)
	}

	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")

		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", "", fmt.Errorf("reading password: %w", err)
		}

		password = string(raw)
	}

	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password are required")
	}

	return email, password, nil
}

// openInBrowser launches the platform browser at url.
func openInBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
