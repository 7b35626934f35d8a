package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for user management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage salon accounts",
	Long:  `Commands for managing salon accounts directly from the server.`,
}

func init() {
	assignRoleCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the account (required)")
	assignRoleCmd.Flags().StringVar(&roleFlag, "role", "", "Role name to assign (required)")
	_ = assignRoleCmd.MarkFlagRequired("email")
	_ = assignRoleCmd.MarkFlagRequired("role")

	UsersCmd.AddCommand(assignRoleCmd)
}
