package cmd

import (
	"os"
	"path"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"

	"github.com/bundlesmith/bundlesmith/internal/logging"
)

// RootCommand is the base CLI command that all subcommands are added to.
var RootCommand = &cobra.Command{
	Use:   path.Base(os.Args[0]),
	Short: "Bundlesmith - Build control plane for front-end asset pipelines",
}

var logLevels = map[int][]string{
	logging.LogLevelError: {"error"},
	logging.LogLevelInfo:  {"info"},
	logging.LogLevelDebug: {"debug"},
}

func addLoggingFlags(flags *pflag.FlagSet, c *logging.Config) {
	flags.Var(enumflag.New(&c.Level, "level", logLevels, enumflag.EnumCaseInsensitive),
		"log-level", "log level (error, info, debug)")
	flags.StringVar(&c.Format, "log-format", logging.LogFormatText, "log format (text, json)")
}

func addConfigFlag(flags *pflag.FlagSet, configFiles *[]string) {
	flags.StringArrayVarP(configFiles, "config", "c", []string{"config.yaml"},
		"configuration file or directory path (directories are read recursively)")
}
