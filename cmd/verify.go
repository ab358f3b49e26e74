package cmd

import (
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <name> <image>",
	Short: "Check an image against one registered person",
	Long: `Compare an image with the reference image of one person using a
perceptual hash. The name is matched exactly first, then ignoring case and
diacritics. Nothing is recorded and the ledger is not opened.

Example:
  face-attendance verify "Jiří" ./door/latest.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().AddFlagSet(storeFlags())
}

func runVerify(cmd *cobra.Command, args []string) error {
	name, imagePath := args[0], args[1]

	probe, err := os.ReadFile(imagePath) //nolint:gosec // operator supplied image path
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, ok := a.store.Lookup(name)
	if !ok {
		return fmt.Errorf("verifying %s: %w", name, identity.ErrNotFound)
	}
	d, err := facematch.NewHashStrategy(a.cfg.Match.HashThreshold).Compare(probe, entry)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", entry.Name, err)
	}

	if len(d.Comparisons) > 0 && d.Comparisons[0].Err != nil {
		fmt.Printf("No match: %s (image could not be decoded: %v)\n", entry.Name, d.Comparisons[0].Err)
		return nil
	}
	if d.Matched {
		fmt.Printf("Match: %s (hash distance %.0f bits, threshold %d)\n", d.Name, d.Distance, a.cfg.Match.HashThreshold)
		return nil
	}
	fmt.Printf("No match: %s (hash distance %.0f bits, threshold %d)\n", entry.Name, d.Distance, a.cfg.Match.HashThreshold)
	return nil
}
