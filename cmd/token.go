package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vantagesign/signdeck/internal/logging"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored GitHub token",
	Long: `Manage the GitHub token used for CDN publishing. The token lives in
the OS keyring when one is available, with an obfuscated file under
~/.signdeck/ as the fallback on headless hosts.`,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Store the GitHub token",
	Long: `Store the GitHub token. Pass it as an argument, or omit it to read
from stdin (safer: the token stays out of the shell history).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTokenSet,
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored token, redacted",
	RunE:  runTokenShow,
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	RunE:  runTokenClear,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenShowCmd)
	tokenCmd.AddCommand(tokenClearCmd)
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		fmt.Fprint(os.Stderr, "GitHub token: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	store, err := newTokenStore(newLogger())
	if err != nil {
		return err
	}
	if err := store.Set(cmd.Context(), token); err != nil {
		return err
	}
	fmt.Println("✓ token stored")
	return nil
}

func runTokenShow(cmd *cobra.Command, args []string) error {
	store, err := newTokenStore(newLogger())
	if err != nil {
		return err
	}
	token, err := store.Get(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(logging.Redact(token))
	return nil
}

func runTokenClear(cmd *cobra.Command, args []string) error {
	store, err := newTokenStore(newLogger())
	if err != nil {
		return err
	}
	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("✓ token cleared")
	return nil
}
