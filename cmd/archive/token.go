package main

import (
	"fmt"
	"time"

	"github.com/matst80/slask-archive/pkg/server"
	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign an admin token",
	Long: `Sign a bearer token with admin.secret for the save endpoints and the
all=1 listing bypass.

Examples:
  archive token --user editor
  archive token --user ci --ttl 720h`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "admin", "username claim")
	tokenCmd.Flags().StringVar(&tokenRole, "role", server.AdminRole, "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	token, err := server.NewAdminAuth(cfg.Admin.Secret).CreateToken(tokenUser, tokenRole, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
