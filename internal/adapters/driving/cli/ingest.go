package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <session-id> [file]",
	Short: "Add a PDF to a session",
	Long: `Extracts the text of a PDF, splits it into chunks and adds them to the
session's index. Pass a local file, or --url to download one.`,
	Example: `  docqa ingest abc123 report.pdf
  docqa ingest abc123 --url https://example.com/report.pdf`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("url", "", "download the PDF from this URL")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return fmt.Errorf("ingest: %w", errNotConfigured)
	}

	sessionID := args[0]
	url, _ := cmd.Flags().GetString("url")

	var source domain.IngestSource
	switch {
	case len(args) == 2 && url == "":
		content, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[1], err)
		}
		source = domain.IngestSource{Filename: filepath.Base(args[1]), Content: content}
	case len(args) == 1 && url != "":
		source = domain.IngestSource{URL: url}
	default:
		return fmt.Errorf("provide either a file or --url")
	}

	result, err := ingestService.Ingest(commandContext(cmd), source, sessionID)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if result.Recovered {
		cmd.Println("The session index was unreadable and has been rebuilt; earlier uploads were lost.")
	}
	cmd.Printf("PDF processed: %d chunks added to session %s\n", result.ChunkCount, sessionID)
	return nil
}
