// Package cmd provides the command-line interface for esiweave.
//
// Configuration comes from multiple sources with the usual precedence:
// command-line flags, ESIWEAVE_* environment variables (for example
// ESIWEAVE_SERVER_PORT or ESIWEAVE_ESI_NAMESPACE), then an
// .esiweave.yml file found via --config, the ESIWEAVE_CONFIG_FILE
// environment variable, or the current directory.
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/esiweave/esiweave/internal/config"
	"github.com/esiweave/esiweave/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "esiweave",
	Short: "A streaming edge-side-include composition proxy",
	Long: `esiweave composites markup documents at request time: it fetches a
document from an origin, resolves the include directives embedded in
it into fetched fragment content, and streams the assembled result to
the client as it is produced.

Quick Start:
  esiweave serve --origin http://localhost:3000     Proxy and compose an origin
  esiweave check page.html                          Parse a document offline`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .esiweave.yml, can also use ESIWEAVE_CONFIG_FILE env var)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	bindFlag(flags, "log.level", "log-level")
	bindFlag(flags, "log.format", "log-format")
}

func bindFlag(fs *pflag.FlagSet, key, name string) {
	_ = viper.BindPFlag(key, fs.Lookup(name))
}

// initConfig initializes viper with flag, environment, and file sources.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ESIWEAVE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".esiweave")
	}

	viper.SetEnvPrefix("ESIWEAVE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; defaults and env vars carry it.
	_ = viper.ReadInConfig()
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) *logging.WeaveLogger {
	return logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
