package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := manager.GetCurrentUser(cmd.Context())
		if err != nil {
			return err
		}
		if profile == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (id %d)\n", profile.DisplayName(), profile.Email, profile.ID)
		if !profile.DateJoined.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "Member since %s\n", profile.DateJoined.Format("2 Jan 2006"))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state without contacting the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "API:     %s\n", appConfig.GetAPIURL())
		fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n", manager.State())
		if token := manager.Token(); token != nil && !token.Expiry.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "Access token expires: %s\n", token.Expiry.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd, statusCmd)
}
