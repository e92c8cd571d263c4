package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ricauth/internal/models"
)

func newCreateUserCmd(open opener) *cobra.Command {
	var (
		user     models.User
		password string
	)

	cmd := &cobra.Command{
		Use:   "createuser",
		Short: "Create a user with a hashed password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user.IsActive = true
			if err := a.Users.CreateUserWithPassword(cmd.Context(), &user, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %q (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&user.Username, "username", "", "login name")
	cmd.Flags().StringVar(&user.Email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().IntVar(&user.OrganizationID, "organization", 0, "organization id")
	cmd.Flags().BoolVar(&user.IsStaff, "staff", false, "grant staff rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("organization")
	return cmd
}
