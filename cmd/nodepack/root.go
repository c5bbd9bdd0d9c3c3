package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/logging"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	logLevel  string
	logFormat string
	verbose   bool

	log zerolog.Logger
}

func (g *globalOptions) AddFlags(fs *pflag.FlagSet) {
	env := logging.FromEnv()
	fs.StringVar(&g.logLevel, "log-level", env.Level, "log level: trace, debug, info, warn, error (env NODEPACK_LOG_LEVEL)")
	fs.StringVar(&g.logFormat, "log-format", env.Format, "log format: console or json (env NODEPACK_LOG_FORMAT)")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "show full parser errors and debug logs")
}

func newRootCommand() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "nodepack",
		Short: "Fetch Node.js runtimes for packaging scripts into executables",
		Long: `nodepack acquires the Node.js runtime a packaged executable is built on:
either a prebuilt binary from the latest release, or the runtime source tree
when building from source. Downloads are cached in the temp directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := g.logLevel
			if g.verbose && !cmd.Flags().Changed("log-level") {
				level = "debug"
			}
			g.log = logging.Build(logging.Options{
				Level:  level,
				Format: g.logFormat,
				Writer: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	g.AddFlags(root.PersistentFlags())

	root.AddCommand(
		newFetchCommand(g),
		newTargetCommand(g),
		newVersionCommand(),
	)
	return root
}
