package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <session-id> <question>",
	Short: "Ask a question about a session's PDFs",
	Long: `Retrieves the passages most similar to the question from the session's
index and asks the language model to answer from them.`,
	Example: `  docqa ask abc123 "What is the invoice total?"`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runAsk,
}

func init() {
	askCmd.Flags().Bool("json", false, "print the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return fmt.Errorf("ask: %w", errNotConfigured)
	}

	question := strings.Join(args[1:], " ")
	answer, err := queryService.Answer(commandContext(cmd), question, args[0])
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	cmd.Println(answer.Text)
	if len(answer.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, src := range answer.Sources {
			cmd.Printf("  %d. %s (page %d)\n", i+1, src.Source, src.Page+1)
		}
	}
	return nil
}
