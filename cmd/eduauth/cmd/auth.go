package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jrsteele09/go-auth-session/users"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	emailFlag    string
	passwordFlag string
	usernameFlag string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the token pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(cmd.InOrStdin())
		email, err := promptIfEmpty(cmd.OutOrStdout(), reader, emailFlag, "Email: ")
		if err != nil {
			return err
		}
		password, err := passwordIfEmpty(cmd.OutOrStdout(), passwordFlag, "Password: ")
		if err != nil {
			return err
		}

		s, err := manager.Login(cmd.Context(), users.Credentials{Email: email, Password: password})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", s.User.DisplayName())
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in with it",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(cmd.InOrStdin())
		username, err := promptIfEmpty(cmd.OutOrStdout(), reader, usernameFlag, "Username: ")
		if err != nil {
			return err
		}
		email, err := promptIfEmpty(cmd.OutOrStdout(), reader, emailFlag, "Email: ")
		if err != nil {
			return err
		}
		password, err := passwordIfEmpty(cmd.OutOrStdout(), passwordFlag, "Password: ")
		if err != nil {
			return err
		}
		confirm := passwordFlag
		if confirm == "" {
			if confirm, err = passwordIfEmpty(cmd.OutOrStdout(), "", "Confirm password: "); err != nil {
				return err
			}
		}

		s, err := manager.Register(cmd.Context(), users.RegistrationDetails{
			Username:        username,
			Email:           email,
			Password:        password,
			ConfirmPassword: confirm,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Account created. Logged in as %s\n", s.User.DisplayName())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved token pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !manager.IsAuthenticated() {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
			return nil
		}
		manager.Logout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

func promptIfEmpty(out io.Writer, reader *bufio.Reader, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(out, prompt)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func passwordIfEmpty(out io.Writer, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(out, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&emailFlag, "email", "", "account email")
		c.Flags().StringVar(&passwordFlag, "password", "", "account password (prompted when omitted)")
	}
	registerCmd.Flags().StringVar(&usernameFlag, "username", "", "display name for the new account")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd)
}
