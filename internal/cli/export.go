package cli

import (
	"log"

	"github.com/spf13/cobra"

	"exam-practice-service/internal/export"
	"exam-practice-service/internal/history"
)

// NewExportCmd writes the local attempt history to a spreadsheet.
func NewExportCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attempt history to an .xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(*configPath)
			historyPath := cfg.History.Path
			if historyPath == "" {
				historyPath = "exam-history.db"
			}
			store, err := history.Open(historyPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := export.WriteHistory(cmd.Context(), store, out)
			if err != nil {
				return err
			}
			log.Printf("exported %d attempts to %s", n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "attempt-history.xlsx", "output file path")
	return cmd
}
