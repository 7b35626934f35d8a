package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/salonbook/salonapi/internal/db/models"
	"github.com/salonbook/salonapi/internal/services/iam"
)

// RolesCmd is the parent command for role matrix operations
var RolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect and edit roles",
	Long:  `Commands for reading and editing the role/permission matrix directly from the server.`,
}

func init() {
	RolesCmd.AddCommand(listCmd)
	RolesCmd.AddCommand(setPermissionsCmd)
}

// findRole resolves a role by name, ignoring case.
func findRole(ctx context.Context, svc iam.Service, name string) (*models.RoleWithPermissions, error) {
	roles, err := svc.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for i := range roles {
		if strings.EqualFold(roles[i].Name, name) {
			return &roles[i], nil
		}
		names = append(names, roles[i].Name)
	}
	return nil, fmt.Errorf("role %q not found\nValid roles are: %s", name, strings.Join(names, ", "))
}
