package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config keys
const (
	ConfigKeyServerURL    = "server_url"
	ConfigKeyToken        = "token"
	ConfigKeyRefreshToken = "refresh_token"

	PrefItemsPerPage     = "preferences.items_per_page"
	PrefDefaultDateRange = "preferences.default_date_range"
	PrefVisibleColumns   = "preferences.visible_columns"
	PrefTheme            = "preferences.theme"
)

var themes = []string{"system", "light", "dark"}

// configDir returns the infradesk config directory. INFRADESK_HOME overrides
// the default of ~/.infradesk.
func configDir() string {
	if dir := os.Getenv("INFRADESK_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: unable to find home directory:", err)
		os.Exit(1)
	}
	return filepath.Join(home, ".infradesk")
}

func configFile() string {
	return filepath.Join(configDir(), "config.yaml")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	viper.SetConfigFile(configFile())
	viper.SetConfigType("yaml")

	if err := os.MkdirAll(configDir(), 0700); err != nil {
		fmt.Fprintln(os.Stderr, "Error: unable to create config directory:", err)
	}

	viper.SetDefault(ConfigKeyServerURL, "")
	viper.SetDefault(ConfigKeyToken, "")
	viper.SetDefault(ConfigKeyRefreshToken, "")
	viper.SetDefault(PrefItemsPerPage, 25)
	viper.SetDefault(PrefDefaultDateRange, 30)
	viper.SetDefault(PrefTheme, "system")

	viper.SetEnvPrefix("INFRADESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "Warning: error reading config file:", err)
		}
	}
}

// saveConfig writes the current configuration to the config file
func saveConfig() error {
	return viper.WriteConfigAs(configFile())
}

// visibleColumns returns the columns configured for a table, or nil for all.
// The value is either a YAML list or a comma separated string.
func visibleColumns(table string) []string {
	var cols []string
	switch v := viper.Get(PrefVisibleColumns + "." + table).(type) {
	case string:
		cols = strings.Split(v, ",")
	case []any:
		for _, c := range v {
			cols = append(cols, fmt.Sprint(c))
		}
	case []string:
		cols = v
	}
	out := cols[:0]
	for _, c := range cols {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, strings.ToUpper(c))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// setConfigValue validates and stores a single key.
func setConfigValue(key, value string) error {
	switch {
	case key == ConfigKeyServerURL:
		value = strings.TrimRight(value, "/")
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("server_url must start with http:// or https://")
		}
		viper.Set(key, value)
	case key == PrefItemsPerPage, key == PrefDefaultDateRange:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer", key)
		}
		viper.Set(key, n)
	case key == PrefTheme:
		if !slices.Contains(themes, value) {
			return fmt.Errorf("theme must be one of %s", strings.Join(themes, ", "))
		}
		viper.Set(key, value)
	case strings.HasPrefix(key, PrefVisibleColumns+"."):
		viper.Set(key, value)
	case key == ConfigKeyToken, key == ConfigKeyRefreshToken:
		return fmt.Errorf("%s is managed by 'infradesk login'", key)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change CLI settings",
	Long: `Show or change CLI settings stored in ~/.infradesk/config.yaml.

Keys:
  server_url                          infradesk server address
  preferences.items_per_page          rows shown by list commands
  preferences.default_date_range      days covered by 'audit' when --days is not set
  preferences.visible_columns.<table> comma separated column names, e.g. NAME,STATUS
  preferences.theme                   system, light or dark`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setConfigValue(args[0], args[1]); err != nil {
			return err
		}
		if err := saveConfig(); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s updated.\n", args[0])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !viper.IsSet(args[0]) {
			return fmt.Errorf("config key %q is not set", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), viper.Get(args[0]))
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the effective config with tokens redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := viper.AllSettings()
		for _, key := range []string{ConfigKeyToken, ConfigKeyRefreshToken} {
			if s, _ := settings[key].(string); s != "" {
				settings[key] = "REDACTED"
			}
		}
		out, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configViewCmd)
	rootCmd.AddCommand(configCmd)
}
