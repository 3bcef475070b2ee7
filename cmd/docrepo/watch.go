package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-repository-redis/repository"
)

var watchMode string

var watchCmd = &cobra.Command{
	Use:   "watch [pattern]",
	Short: "Print members as other processes change them",
	Long: `Subscribe to member changes and print every document received until
interrupted. Keyspace mode needs keyspace notifications enabled on the
server (notify-keyspace-events K$gx for Redis).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var mode repository.SubscriptionMode
		if err := mode.UnmarshalText([]byte(watchMode)); err != nil {
			return err
		}

		repo, err := members()
		if err != nil {
			return err
		}
		defer repo.Close(context.WithoutCancel(cmd.Context()))

		pattern := "*"
		if len(args) == 1 {
			pattern = args[0]
		}

		repo.OnSubscriptionTriggered(func(_ context.Context, m *Member) {
			if err := printJSON(m); err != nil {
				logger.Warn("print failed", "key", m.ID, "error", err)
			}
		})
		repo.OnCacheChanged(func(_ context.Context, m *Member) {
			logger.Debug("cache updated", "key", m.ID)
		})

		if err := repo.Subscribe(cmd.Context(), pattern, mode); err != nil {
			return err
		}
		logger.Info("watching", "pattern", repo.Key(pattern), "mode", mode.String())

		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchMode, "mode", "keyspace", "Subscription mode (keyspace, pubsub)")
}
