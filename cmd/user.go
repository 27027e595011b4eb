package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/habitkit/habits/internal/auth"
	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/internal/storage/backend"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var passwordStdin bool

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts directly in the configured storage",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimSpace(args[0])
		if err := auth.ValidateUsername(username); err != nil {
			return err
		}

		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if err := auth.ValidatePassword(password); err != nil {
			return err
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		store, err := backend.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := store.CreateUser(cmd.Context(), username, hash)
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("user %q already exists", username)
		}
		if err != nil {
			return err
		}
		logger.Info("User created", "user_id", u.ID, "username", u.Username)
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", u.Username, u.ID)
		return nil
	},
}

var userAPIKeyCmd = &cobra.Command{
	Use:   "api-key <username>",
	Short: "Issue an API key for the CLI commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := backend.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := store.GetUserByUsername(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no such user %q", args[0])
		}
		if err != nil {
			return err
		}

		key, err := auth.NewAPIKey()
		if err != nil {
			return err
		}
		if err := store.PutAPIKey(cmd.Context(), auth.HashAPIKey(key), u.ID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func readPassword(cmd *cobra.Command) (string, error) {
	if passwordStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return "", err
	}
	confirm, err := promptPassword("Confirm: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func promptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("stdin is not a terminal (use --password-stdin)")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pass), nil
}

func init() {
	userAddCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	userCmd.AddCommand(userAddCmd, userAPIKeyCmd)
	rootCmd.AddCommand(userCmd)
}
