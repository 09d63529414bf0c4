package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Delete a session",
	Long:  `Deletes the session's index and, when blob storage is configured, its uploaded files.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete a session or all sessions idle since a time",
	Example: `  docqa clear --session abc123
  docqa clear --before 2026-01-01T00:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Delete sessions idle for longer than the expiry TTL",
	Args:  cobra.NoArgs,
	RunE:  runExpire,
}

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show what a session holds",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	clearCmd.Flags().String("session", "", "session to delete")
	clearCmd.Flags().String("before", "", "delete sessions last written before this RFC 3339 time")
	expireCmd.Flags().Duration("older-than", 0, "idle time after which sessions are deleted (default expiry.ttl)")
	statusCmd.Flags().Bool("json", false, "print the status as JSON")

	rootCmd.AddCommand(resetCmd, clearCmd, expireCmd, statusCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return fmt.Errorf("reset: %w", errNotConfigured)
	}
	if err := sessionService.Reset(commandContext(cmd), args[0]); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	cmd.Printf("Session %s has been reset.\n", args[0])
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return fmt.Errorf("clear: %w", errNotConfigured)
	}

	sessionID, _ := cmd.Flags().GetString("session")
	rawBefore, _ := cmd.Flags().GetString("before")

	var before *time.Time
	if rawBefore != "" {
		t, err := time.Parse(time.RFC3339, rawBefore)
		if err != nil {
			return fmt.Errorf("invalid --before: %w", err)
		}
		before = &t
	}

	deleted, err := sessionService.Clear(commandContext(cmd), sessionID, before)
	if err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	printDeleted(cmd, deleted)
	return nil
}

func runExpire(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return fmt.Errorf("expire: %w", errNotConfigured)
	}

	olderThan, _ := cmd.Flags().GetDuration("older-than")
	if olderThan <= 0 && appConfig != nil {
		olderThan = appConfig.Expiry.TTL.Std()
	}
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	deleted, err := sessionService.Expire(commandContext(cmd), time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("expire failed: %w", err)
	}
	printDeleted(cmd, deleted)
	return nil
}

func printDeleted(cmd *cobra.Command, deleted []string) {
	if len(deleted) == 0 {
		cmd.Println("No sessions deleted.")
		return
	}
	cmd.Printf("Deleted %d session(s):\n", len(deleted))
	for _, id := range deleted {
		cmd.Printf("  %s\n", id)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return fmt.Errorf("status: %w", errNotConfigured)
	}

	status, err := sessionService.Status(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	if !status.Exists {
		cmd.Printf("Session %s has no documents.\n", status.SessionID)
		return nil
	}
	cmd.Printf("Session:  %s\n", status.SessionID)
	cmd.Printf("Chunks:   %d\n", status.Chunks)
	cmd.Printf("Model:    %s\n", status.Model)
	cmd.Printf("Updated:  %s\n", status.UpdatedAt.Format(time.RFC3339))
	cmd.Println("Sources:")
	for _, src := range status.Sources {
		cmd.Printf("  %s\n", src)
	}
	return nil
}
