package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"prairielearn/backend/internal/models"
)

func newPromoteCommand(a *app) *cobra.Command {
	var demote bool

	cmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Give a registered user the instructor role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}

			role := models.RoleInstructor
			if demote {
				role = models.RoleStudent
			}
			email := strings.ToLower(strings.TrimSpace(args[0]))
			res := db.WithContext(cmd.Context()).Model(&models.User{}).Where("email = ?", email).Update("role", role)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("no user with email %s", email)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", email, role)
			return nil
		},
	}
	cmd.Flags().BoolVar(&demote, "demote", false, "set the student role instead")
	return cmd
}
