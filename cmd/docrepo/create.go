package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-repository-redis/repository"
)

var (
	createTitle    string
	createUser     string
	createEmail    string
	createStatus   int
	createMemberID int
	createTTL      time.Duration
	createPublish  bool
)

var createCmd = &cobra.Command{
	Use:   "create [id]",
	Short: "Create or overwrite a member",
	Long:  `Create a member document. Without an id a random UUID is used.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := members()
		if err != nil {
			return err
		}
		defer repo.Close(cmd.Context())

		m := repo.CreateNew()
		m.ID = uuid.NewString()
		if len(args) == 1 {
			m.ID = args[0]
		}
		m.MemberID = createMemberID
		m.Title = createTitle
		m.UserName = createUser
		m.Email = createEmail
		m.Status = createStatus

		var opts []repository.SaveOption
		if createTTL != 0 {
			opts = append(opts, repository.WithExpiration(createTTL))
		}
		if createPublish {
			opts = append(opts, repository.WithPublish())
		}
		if err := repo.Save(cmd.Context(), opts...); err != nil {
			return err
		}
		logger.Info("member saved", "key", m.ID)
		return printJSON(m)
	},
}

func init() {
	flags := createCmd.Flags()
	flags.StringVar(&createTitle, "title", "", "Member title")
	flags.StringVar(&createUser, "user", "", "User name")
	flags.StringVar(&createEmail, "email", "", "Email address")
	flags.IntVar(&createStatus, "status", 0, "Status code")
	flags.IntVar(&createMemberID, "member-id", 0, "Numeric member id")
	flags.DurationVar(&createTTL, "ttl", 0, "Record expiration, negative for none (default from options)")
	flags.BoolVar(&createPublish, "publish", false, "Also publish the document on its channel")
}
