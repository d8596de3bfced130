package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("cannot read password: %w", err)
		}

		c, cfg, err := newSDKClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.Login(ctx, email, string(pw)); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg.Auth.Token = c.Token
		cfg.Auth.Email = email
		if err := saveConfig(cfg); err != nil {
			return err
		}

		fmt.Println("Logged in as", email)
		return nil
	},
}
