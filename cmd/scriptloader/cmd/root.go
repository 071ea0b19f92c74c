// Package cmd implements the scriptloader command line.
package cmd

import (
	"io"

	"github.com/GoCodeAlone/scriptloader"
	"github.com/GoCodeAlone/scriptloader/feeders"
	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	baseURL    string
	debug      bool
	wait       bool
	logLevel   string
	logFormat  string
}

// NewRootCommand creates the root command for the scriptloader CLI.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "scriptloader",
		Short: "Fetch, order and execute script modules",
		Long: `scriptloader resolves a manifest tree, fetches the modules it registers
and executes each one once, after everything it depends on.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .toml, .json or .hcl)")
	flags.StringVar(&opts.baseURL, "base", "", "base URL or directory manifests and modules are fetched from")
	flags.BoolVar(&opts.debug, "debug", false, "fetch non-minified sources")
	flags.BoolVar(&opts.wait, "wait", false, "in debug mode, only run the app when requested")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*scriptloader.Config, error) {
	flags := cmd.Flags()
	fromFlags := feeders.FeederFunc(func(structure any) error {
		cfg := structure.(*scriptloader.Config)
		if flags.Changed("base") {
			cfg.BaseURL = o.baseURL
		}
		if flags.Changed("debug") {
			cfg.Debug = o.debug
		}
		if flags.Changed("wait") {
			cfg.Wait = o.wait
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = o.logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = o.logFormat
		}
		return nil
	})
	return scriptloader.LoadConfig(o.configPath, fromFlags)
}

func newLogger(cfg *scriptloader.Config, w io.Writer) scriptloader.Logger {
	return scriptloader.NewSlogLogger(cfg.LogLevel, cfg.LogFormat, w)
}
