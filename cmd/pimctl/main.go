// Command pimctl runs the golden-record pipeline against local files.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcdoradca/PIM/internal/config"
	"github.com/mcdoradca/PIM/internal/logging"
)

type rootOptions struct {
	logLevel string
	cfg      config.Config
	logger   *logrus.Entry
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "pimctl",
		Short:         "Normalize and inspect product images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.cfg = config.Load()
			logger, err := logging.New("pimctl", logging.Options{
				Level:  opts.logLevel,
				Format: "text",
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newNormalizeCommand(opts),
		newCheckCommand(opts),
		newIdentifyCommand(opts),
		newProfileCommand(),
	)
	return cmd
}

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pimctl:", err)
		os.Exit(1)
	}
}
