package iam

import (
	"github.com/spf13/cobra"
)

// IamCmd is the parent command for identity bootstrap operations
var IamCmd = &cobra.Command{
	Use:   "iam",
	Short: "Bootstrap salon administrators",
	Long: `Commands that need system authority. They run with the in-process system
principal, which never travels over HTTP.`,
}

func init() {
	IamCmd.AddCommand(bootstrapCmd)
}
