package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show attendance records, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLedger,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.Flags().Int("limit", constants.DefaultLedgerLimit, "Maximum number of records to show, 0 for all")
	ledgerCmd.Flags().AddFlagSet(ledgerFlags())
}

func runLedger(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	if limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", limit)
	}

	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.engine.Ledger(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No attendance records")
		return nil
	}

	fmt.Printf("%-32s %-20s %s\n", "NAME", "TIME", "STATUS")
	for _, r := range records {
		fmt.Printf("%-32s %-20s %s\n", r.Name, r.Time.Local().Format(constants.LedgerTimeFormat), r.Status)
	}
	fmt.Printf("\n%d record(s)\n", len(records))
	return nil
}
