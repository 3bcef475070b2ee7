package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-repository-redis/repository"
)

var getFresh bool

var getCmd = &cobra.Command{
	Use:   "get <id>...",
	Short: "Print members by id",
	Long:  `Print one member, or every existing member of a list of ids as a JSON array.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := members()
		if err != nil {
			return err
		}
		defer repo.Close(cmd.Context())

		ctx := cmd.Context()
		if getFresh {
			ctx = repository.WithCacheBypass(ctx)
		}

		if len(args) == 1 {
			m, err := repo.GetByID(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(m)
		}

		docs, err := repo.GetAll(ctx, args)
		if err != nil {
			return err
		}
		return printJSON(docs)
	},
}

func init() {
	getCmd.Flags().BoolVar(&getFresh, "fresh", false, "Skip the local cache")
}
