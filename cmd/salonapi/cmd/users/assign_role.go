package users

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/salonbook/salonapi/cmd/salonapi/cmd/cmdutil"
	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/services/iam"
)

var (
	emailFlag string
	roleFlag  string
)

var assignRoleCmd = &cobra.Command{
	Use:   "assign-role",
	Short: "Assign a role to an account, creating it if needed",
	Long: `Assign a role to the account with the given email. When no account exists
one is created without a password and a setup link is mailed to it.

Example:
  salonapi users assign-role --email stylist@example.com --role Expert
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !iam.ValidEmail(emailFlag) {
			return fmt.Errorf("invalid email format: %q", emailFlag)
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		bundle, err := cmdutil.NewIAMServiceBundle(cfg, logrus.StandardLogger())
		if err != nil {
			return err
		}
		defer bundle.Close()

		res, err := bundle.Service.AssignUserRole(cmdutil.SystemContext(cmd.Context()), emailFlag, roleFlag)
		if err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}

		if res.Created {
			fmt.Printf("✓ Created account %s with role '%s'\n", res.Email, res.RoleName)
		} else {
			fmt.Printf("✓ Assigned role '%s' to %s\n", res.RoleName, res.Email)
		}
		fmt.Printf("  User ID: %s\n", res.UserID)
		if res.SetupPending {
			fmt.Println("  A password setup link has been emailed to the account.")
		}
		return nil
	},
}
