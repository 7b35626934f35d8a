package iam

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/salonbook/salonapi/cmd/salonapi/cmd/cmdutil"
	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/services/iam"
)

var (
	emailFlag    string
	nameFlag     string
	passwordFlag string
	stdinFlag    bool
	forceFlag    bool
)

// bootstrapCmd creates the first Admin account
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first Admin account",
	Long: `Create an Admin account with a password, or promote an existing account to
Admin. Refuses when an Admin already exists unless --force is given.

Example:
  salonapi iam bootstrap \
    --email owner@example.com \
    --name "Salon Owner" \
    --stdin
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := passwordFlag
		if stdinFlag {
			// Read password from stdin
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("Enter password: ")
			if scanner.Scan() {
				password = strings.TrimSpace(scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

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

		ctx := cmdutil.SystemContext(context.Background())
		user, err := bundle.Service.BootstrapAdmin(ctx, iam.BootstrapInput{
			Email:    emailFlag,
			Name:     nameFlag,
			Password: password,
			Force:    forceFlag,
		})
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}

		fmt.Println("✓ Admin ready")
		fmt.Printf("  User ID: %s\n", user.ID)
		fmt.Printf("  Email:   %s\n", user.Email)
		fmt.Println("\nLog in with POST /auth/login using these credentials.")
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the Admin (required)")
	bootstrapCmd.Flags().StringVar(&nameFlag, "name", "", "Display name of the Admin")
	bootstrapCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the Admin (use --stdin to avoid shell history)")
	bootstrapCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")
	bootstrapCmd.Flags().BoolVar(&forceFlag, "force", false, "Add another Admin even when one exists")
	_ = bootstrapCmd.MarkFlagRequired("email")
}
