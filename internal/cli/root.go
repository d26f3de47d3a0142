package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "infradesk",
	Short: "Command-line client for the infradesk inventory server",
	Long: `infradesk is a command-line client for the infradesk server, which
tracks customers, contracts, GP accounts, clusters, nodes and VMs.

It provides a way to:
  - Authenticate and manage your session
  - Review the dashboard and password or contract alerts
  - List and edit inventory records
  - Export CSV files and preview imports`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateOutputFormat()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format: table, json or yaml")
	rootCmd.SetVersionTemplate("infradesk version {{.Version}}\n")
}

// serverURL returns the configured server address or an error telling the
// user how to set it.
func serverURL() (string, error) {
	u := viper.GetString(ConfigKeyServerURL)
	if u == "" {
		return "", fmt.Errorf("server_url not configured: run 'infradesk config set server_url <url>'")
	}
	return u, nil
}

// newAuthenticatedClient returns a client carrying the stored tokens. Tokens
// rotated by a transparent refresh are written back to the config file.
func newAuthenticatedClient() (*CentralClient, error) {
	u, err := serverURL()
	if err != nil {
		return nil, err
	}
	token := viper.GetString(ConfigKeyToken)
	if token == "" {
		return nil, fmt.Errorf("not logged in: run 'infradesk login'")
	}
	client := NewCentralClient(u)
	client.SetToken(token)
	client.SetRefreshToken(viper.GetString(ConfigKeyRefreshToken), func(access, refresh string) {
		viper.Set(ConfigKeyToken, access)
		viper.Set(ConfigKeyRefreshToken, refresh)
		if err := saveConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "Warning: saving refreshed token:", err)
		}
	})
	return client, nil
}
