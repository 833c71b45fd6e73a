package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"talkie/internal/api"
	"talkie/internal/creds"

	"github.com/spf13/cobra"
)

var loginPassword string

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted when omitted)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and store the session credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.close()

		password := loginPassword
		if password == "" {
			fmt.Print("Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		res, err := api.Execute[api.LoginResponse](ctx, a.authAPI, api.LoginRoute(args[0], password))
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		pair := creds.TokenPair{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			UserID:       res.UserID,
		}
		if err = a.creds.Write(ctx, pair); err != nil {
			return fmt.Errorf("failed to store credentials: %w", err)
		}

		fmt.Printf("Logged in as %s\n", args[0])
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.close()

		// Best effort: the server call may fail, local credentials go anyway.
		if err := a.api.ExecuteNoResponse(ctx, api.LogoutRoute()); err != nil {
			fmt.Printf("server logout failed: %v\n", err)
		}
		if err := a.creds.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear credentials: %w", err)
		}

		fmt.Println("Logged out")
		return nil
	},
}
