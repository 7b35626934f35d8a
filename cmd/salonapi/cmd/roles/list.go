package roles

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/salonbook/salonapi/cmd/salonapi/cmd/cmdutil"
	"github.com/salonbook/salonapi/internal/config"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles with their permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		bundle, err := cmdutil.NewIAMServiceBundle(cfg, logrus.StandardLogger())
		if err != nil {
			return err
		}
		defer bundle.Close()

		roles, err := bundle.Service.ListRoles(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSYSTEM\tVERSION\tPERMISSIONS")
		for _, r := range roles {
			perms := strings.Join(r.Permissions, ",")
			if perms == "" {
				perms = "-"
			}
			fmt.Fprintf(w, "%s\t%t\t%d\t%s\n", r.Name, r.IsSystemRole, r.Version, perms)
		}
		return w.Flush()
	},
}
