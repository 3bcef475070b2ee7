package main

import (
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <id>",
	Short: "Publish a stored member on its channel",
	Long: `Load a member and publish it on the channel named by its key, so
subscribers in pubsub mode refresh their caches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := members()
		if err != nil {
			return err
		}
		defer repo.Close(cmd.Context())

		m, err := repo.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		n, err := repo.PublishDocument(cmd.Context(), m)
		if err != nil {
			return err
		}
		logger.Info("member published", "key", m.ID, "receivers", n)
		return nil
	},
}
