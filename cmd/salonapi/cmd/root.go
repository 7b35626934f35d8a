package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/salonbook/salonapi/cmd/salonapi/cmd/cmdutil"
	"github.com/salonbook/salonapi/cmd/salonapi/cmd/iam"
	"github.com/salonbook/salonapi/cmd/salonapi/cmd/roles"
	"github.com/salonbook/salonapi/cmd/salonapi/cmd/users"
	"github.com/salonbook/salonapi/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "salonapi",
	Short: "Salon booking API server",
	Long: `salonapi serves the salon booking REST API: accounts, guest sessions,
roles and permissions, plus the maintenance commands that go with them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cmdutil.ConfigureLogging(logrus.StandardLogger(), cfg)
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: SALON_DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SALON_SERVER_ADDR)")
	rootCmd.PersistentFlags().String("server-url", "", "Public base URL used in email links (env: SALON_SERVER_URL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: SALON_DEBUG)")

	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("db-url"))
	_ = viper.BindPFlag("server_addr", rootCmd.PersistentFlags().Lookup("server-addr"))
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server-url"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	// Add subcommands
	rootCmd.AddCommand(iam.IamCmd)
	rootCmd.AddCommand(roles.RolesCmd)
	rootCmd.AddCommand(users.UsersCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
