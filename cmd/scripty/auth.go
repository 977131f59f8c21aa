package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoscripty/internal/auth"
	"github.com/autoscripty/internal/session"
)

const readyTimeout = 10 * time.Second

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&f.password, "password", "p", os.Getenv("SCRIPTY_PASSWORD"), "account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
}

// resolvePassword reads the password from the first line of stdin when no
// flag or environment value was given.
func (f *credentialFlags) resolvePassword(in io.Reader) error {
	if f.password != "" {
		return nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read password: %w", err)
	}
	f.password = strings.TrimRight(line, "\r\n")
	return nil
}

func signUpCmd(opts *globalOptions) *cobra.Command {
	creds := &credentialFlags{}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolvePassword(cmd.InOrStdin()); err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			result, err := c.SignUp(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return err
			}
			if err := resultError(result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Session == nil {
				fmt.Fprintf(out, "Account created for %s. Confirm your email, then run scripty signin.\n", creds.email)
				return nil
			}
			fmt.Fprintf(out, "Account created. Signed in as %s\n", result.Session.Email)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

func signInCmd(opts *globalOptions) *cobra.Command {
	creds := &credentialFlags{}

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and keep the session cookie",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolvePassword(cmd.InOrStdin()); err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			result, err := c.SignIn(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return err
			}
			if err := resultError(result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", result.Session.Email)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

func signOutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			result, err := c.SignOut(cmd.Context())
			if err != nil {
				return err
			}
			if err := resultError(result); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			s := store.Get()
			if s == nil {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			fmt.Fprintf(out, "Signed in as %s\n", s.Email)
			if !s.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Session expires %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

// openStore mirrors the server-side auth state and waits for its first fetch
func openStore(ctx context.Context, src session.Source) (*session.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store := session.NewStore(ctx, src)

	select {
	case <-store.Ready():
		return store, nil
	case <-time.After(readyTimeout):
		store.Close()
		return nil, errors.New("timed out waiting for the server session")
	}
}

func resultError(result auth.Result) error {
	if result.Success {
		return nil
	}
	if result.Error == "" {
		return errors.New("request failed")
	}
	return errors.New(result.Error)
}
