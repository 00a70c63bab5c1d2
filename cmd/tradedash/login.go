package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mbocsi/tradedash/api"
	"github.com/mbocsi/tradedash/auth"
	"github.com/spf13/cobra"
)

func newLoginCmd(e *env) *cobra.Command {
	var username, password string
	var register bool
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = e.cfg.Auth.Username
			}
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if password == "" {
				password = os.Getenv("TRADEDASH_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			ctx := cmd.Context()
			if register {
				u, err := e.api.Register(ctx, api.Registration{Username: username, Email: email, Password: password})
				if err != nil {
					return fmt.Errorf("register: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (id %d)\n", u.Username, u.ID)
			}

			tok, err := e.api.Login(ctx, username, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if err := e.store.Save(tok.AccessToken); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged in as %s\n", username)
			if exp, ok := auth.Expiry(tok.AccessToken); ok {
				fmt.Fprintf(out, "Token expires %s (in %s)\n", exp.Local().Format(time.DateTime), time.Until(exp).Round(time.Minute))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().BoolVar(&register, "register", false, "Create the account before logging in")
	cmd.Flags().StringVar(&email, "email", "", "Email for --register")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := e.authenticate()
			if err != nil {
				return err
			}
			u, err := e.api.Me(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s> (id %d)\n", u.Username, u.Email, u.ID)
			if exp, ok := auth.Expiry(token); ok {
				fmt.Fprintf(out, "Token expires %s\n", exp.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}
