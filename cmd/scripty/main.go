package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/autoscripty/internal/client"
)

// Version information set at build time.
var version = "dev"

type globalOptions struct {
	server     string
	cookieFile string
	cookieName string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "scripty",
		Short: "Submit scripts to an Auto Scripty server",
		Long: `scripty signs in to an Auto Scripty server and submits scripts.

The session cookie is kept in a cookie file between runs, so sign in once
and submit as often as needed until the session ends.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("SCRIPTY_SERVER", "http://localhost:8080"), "server base URL")
	flags.StringVar(&opts.cookieFile, "cookie-file", envOr("SCRIPTY_COOKIE_FILE", defaultCookieFile()), "file holding the session cookie")
	flags.StringVar(&opts.cookieName, "cookie-name", envOr("SESSION_COOKIE_NAME", "scripty-session"), "session cookie name used by the server")

	rootCmd.AddCommand(
		signUpCmd(opts),
		signInCmd(opts),
		signOutCmd(opts),
		whoamiCmd(opts),
		submitCmd(opts),
	)

	return rootCmd
}

func (o *globalOptions) client() (*client.Client, error) {
	clientOpts := []client.Option{client.WithCookieName(o.cookieName)}
	if o.cookieFile != "" {
		clientOpts = append(clientOpts, client.WithCookieFile(o.cookieFile))
	}
	return client.New(o.server, clientOpts...)
}

func defaultCookieFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "scripty", "cookies.json")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
