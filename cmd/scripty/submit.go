package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/validation"
)

func submitCmd(opts *globalOptions) *cobra.Command {
	var (
		title    string
		text     string
		textFile string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a script",
		Long: `Submit a script with a title and body text.

The body is taken from --text, or from --file ("-" reads stdin).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if textFile != "" {
				body, err := readText(cmd.InOrStdin(), textFile)
				if err != nil {
					return err
				}
				text = body
			}

			input := domain.ScriptInput{Title: title, Text: text}
			if err := validation.ValidateScript(input); err != nil {
				var validationErr *domain.ValidationError
				if errors.As(err, &validationErr) {
					for _, issue := range validationErr.Issues {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", issue.Field, issue.Message)
					}
				}
				return errors.New("validation failed")
			}

			c, err := opts.client()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer store.Close()

			if store.Get() == nil {
				return errors.New("not signed in, run scripty signin first")
			}

			script, err := c.SubmitScript(cmd.Context(), input)
			if err != nil {
				return errors.New(domain.PublicMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Script saved: %s (%s)\n", script.Title, script.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "script title")
	cmd.Flags().StringVar(&text, "text", "", "script body")
	cmd.Flags().StringVarP(&textFile, "file", "f", "", "read the script body from a file")
	cmd.MarkFlagsMutuallyExclusive("text", "file")

	return cmd
}

func readText(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		body, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(body), nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read script file: %w", err)
	}
	return string(body), nil
}
