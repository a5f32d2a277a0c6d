// Package cmd wires the federation flows into a CLI.
package cmd

import (
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCmd creates the root CLI command.
func NewRootCmd() *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "qindex-broker",
		Short: "Obtain user-scoped credentials for a cross-account Q index",
		Long: `Federates an ISV application into an enterprise account's Q index.
Depending on configuration, either redirects the user to the enterprise's
IAM Identity Center (authorization-code flow) or authenticates against the
ISV's own Cognito directory and exchanges the result (trusted token
issuance). Both flows end in short-lived credentials scoped to the
authenticated end user.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newLoginCmd(&debug))
	rootCmd.AddCommand(newValidateCmd(&debug))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openBrowser opens the given URL in the user's default browser. Best
// effort; the URL is always printed as well.
func openBrowser(targetURL string) error {
	var command string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		command = "open"
	case "linux":
		command = "xdg-open"
	case "windows":
		command = "rundll32"
		args = []string{"url.dll,FileProtocolHandler"}
	default:
		return nil
	}

	args = append(args, targetURL)
	return exec.Command(command, args...).Start()
}
