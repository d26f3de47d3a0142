package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server connection and login state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	u := viper.GetString(ConfigKeyServerURL)

	fmt.Fprintln(out, "infradesk Status")
	fmt.Fprintln(out, "----------------")

	if u == "" {
		fmt.Fprintln(out, "Server:   (not configured)")
		return nil
	}
	fmt.Fprintf(out, "Server:   %s\n", u)

	if err := NewCentralClient(u).CheckHealth(); err != nil {
		fmt.Fprintln(out, "Status:   Disconnected")
	} else {
		fmt.Fprintln(out, "Status:   Connected")
	}

	if viper.GetString(ConfigKeyToken) == "" {
		fmt.Fprintln(out, "User:     (not logged in)")
		return nil
	}
	client, err := newAuthenticatedClient()
	if err != nil {
		return err
	}
	me, err := client.Me()
	if err != nil {
		fmt.Fprintf(out, "User:     (session invalid: %v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "User:     %s (%s)\n", me.Email, me.Role)
	return nil
}
