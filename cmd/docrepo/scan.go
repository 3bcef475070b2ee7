package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	scanLimit int
	scanLoad  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [pattern]",
	Short: "List member keys matching a glob pattern",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := members()
		if err != nil {
			return err
		}
		defer repo.Close(cmd.Context())

		pattern := "*"
		if len(args) == 1 {
			pattern = args[0]
		}

		if scanLoad {
			docs, err := repo.GetAllMatching(cmd.Context(), pattern, scanLimit)
			if err != nil {
				return err
			}
			return printJSON(docs)
		}

		return repo.ScanEach(cmd.Context(), pattern, scanLimit, func(key string) bool {
			fmt.Println(key)
			return true
		})
	},
}

func init() {
	scanCmd.Flags().IntVarP(&scanLimit, "limit", "n", 0, "Maximum number of keys (default from options)")
	scanCmd.Flags().BoolVar(&scanLoad, "load", false, "Load and print the matching documents")
}
