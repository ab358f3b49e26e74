package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <name> <image>",
	Short: "Register a reference face",
	Long: `Register an image as the reference face of a person.

The image must be a JPEG or PNG with at least one detectable face. It is
stored as <name>.<ext> in the reference directory. An existing name is
rejected unless --overwrite is set.

Example:
  face-attendance register "Jan Novák" ./captures/jan.jpg
  face-attendance register alice ./alice-new.png --overwrite`,
	Args: cobra.ExactArgs(2),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().Bool("overwrite", false, "Replace an existing reference with the same name")
	registerCmd.Flags().AddFlagSet(storeFlags())
}

func runRegister(cmd *cobra.Command, args []string) error {
	name, imagePath := args[0], args[1]
	overwrite := mustGetBool(cmd, "overwrite")

	image, err := os.ReadFile(imagePath) //nolint:gosec // operator supplied image path
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.store.Register(cmd.Context(), name, image, overwrite)
	if err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}

	fmt.Printf("Registered %s as %s\n", entry.Name, filepath.Base(entry.Path))
	fmt.Printf("Known identities: %d\n", a.store.Len())
	return nil
}
