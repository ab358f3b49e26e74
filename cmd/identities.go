package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Manage reference faces",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reference faces in match order",
	Args:  cobra.NoArgs,
	RunE:  runIdentitiesList,
}

var identitiesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a reference face",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentitiesDelete,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(identitiesDeleteCmd)
	identitiesListCmd.Flags().AddFlagSet(storeFlags())
	identitiesDeleteCmd.Flags().AddFlagSet(storeFlags())
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries := a.store.Entries()
	if len(entries) == 0 {
		fmt.Printf("No reference faces in %s\n", a.store.Dir())
		return nil
	}

	for i, e := range entries {
		fmt.Printf("%3d. %-32s %s\n", i+1, e.Name, filepath.Base(e.Path))
	}
	fmt.Printf("\n%d identities (%s mode)\n", len(entries), a.store.Mode())

	if a.references != nil {
		count, err := a.references.Count(cmd.Context())
		if err != nil {
			a.log.WithError(err).Warn("Failed to count cached embeddings")
		} else {
			fmt.Printf("%d cached embeddings in PostgreSQL\n", count)
		}
	}
	return nil
}

func runIdentitiesDelete(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("deleting %s: %w", args[0], err)
	}
	fmt.Printf("Deleted %s, %d identities left\n", args[0], a.store.Len())
	return nil
}
