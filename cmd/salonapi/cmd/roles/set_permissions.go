package roles

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/salonbook/salonapi/cmd/salonapi/cmd/cmdutil"
	"github.com/salonbook/salonapi/internal/config"
)

var clearFlag bool

var setPermissionsCmd = &cobra.Command{
	Use:   "set-permissions <role> [permission...]",
	Short: "Replace a role's permission set",
	Long: `Replace every permission of a role with the given slugs. Unknown slugs are
rejected and nothing changes. Pass --clear with no slugs to empty the set.

Example:
  salonapi roles set-permissions Expert appointments.view appointments.manage_own
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roleName, slugs := args[0], args[1:]
		if len(slugs) == 0 && !clearFlag {
			return fmt.Errorf("no permissions given; pass --clear to remove every permission")
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

		ctx := cmdutil.SystemContext(cmd.Context())
		role, err := findRole(ctx, bundle.Service, roleName)
		if err != nil {
			return err
		}

		updated, err := bundle.Service.SetRolePermissions(ctx, role.ID, slugs)
		if err != nil {
			return fmt.Errorf("failed to update role %q: %w", role.Name, err)
		}

		fmt.Printf("✓ Role '%s' updated (version %d)\n", updated.Name, updated.Version)
		if len(updated.Permissions) == 0 {
			fmt.Println("  Permissions: none")
		} else {
			fmt.Printf("  Permissions: %s\n", strings.Join(updated.Permissions, ", "))
		}
		return nil
	},
}

func init() {
	setPermissionsCmd.Flags().BoolVar(&clearFlag, "clear", false, "Allow an empty permission set")
}
