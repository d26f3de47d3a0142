package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the infradesk server",
	Long: `Authenticate with the infradesk server.

This command prompts for email and password and stores the issued
access and refresh tokens in the config file.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the stored session and clear local tokens",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "operator email (prompted when empty)")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	u, err := serverURL()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	email := loginEmail
	if email == "" {
		fmt.Fprint(out, "Email: ")
		if email, err = readLine(reader); err != nil {
			return fmt.Errorf("reading email: %w", err)
		}
	}

	fmt.Fprint(out, "Password: ")
	password, err := readPassword(cmd.InOrStdin(), reader)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	resp, err := NewCentralClient(u).Login(email, password)
	if err != nil {
		return err
	}

	viper.Set(ConfigKeyToken, resp.AccessToken)
	viper.Set(ConfigKeyRefreshToken, resp.RefreshToken)
	if err := saveConfig(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if resp.Operator != nil {
		fmt.Fprintf(out, "Logged in as %s (%s).\n", resp.Operator.Email, resp.Operator.Role)
	} else {
		fmt.Fprintln(out, "Login successful.")
	}
	return nil
}

// readPassword reads without echo from a terminal and falls back to a plain
// line for piped input.
func readPassword(in io.Reader, reader *bufio.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return string(b), err
	}
	return readLine(reader)
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	refresh := viper.GetString(ConfigKeyRefreshToken)
	if u := viper.GetString(ConfigKeyServerURL); u != "" && refresh != "" {
		if err := NewCentralClient(u).Logout(refresh); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: server logout failed:", err)
		}
	}

	viper.Set(ConfigKeyToken, "")
	viper.Set(ConfigKeyRefreshToken, "")
	if err := saveConfig(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}
