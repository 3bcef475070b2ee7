package main

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete members",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := members()
		if err != nil {
			return err
		}
		defer repo.Close(cmd.Context())

		for _, id := range args {
			if err := repo.Delete(cmd.Context(), id); err != nil {
				return err
			}
			logger.Info("member deleted", "key", repo.Key(id))
		}
		return nil
	},
}
