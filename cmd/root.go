// Package cmd provides the command-line interface for eldroid-ssg.
//
// Configuration System:
//
//	The CLI layers its configuration from multiple sources with clear precedence:
//	1. Command-line flags (--output-dir, --port, etc.) - highest priority
//	2. ELDROID_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (ELDROID_SERVER_PORT, etc.)
//	4. Configuration file (.eldroid.yml) - lowest priority
//
// Environment Variables:
//
//	ELDROID_CONFIG_FILE: Path to custom configuration file
//	ELDROID_SERVER_PORT: Override server port
//	ELDROID_BUILD_OUTPUT_DIR: Override output directory
//	And so on following the ELDROID_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/EldroidTech/eldroid-ssg/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eldroid",
	Short: "A component-based static site generator with incremental builds",
	Long: `Eldroid turns a tree of HTML/Markdown content and a library of reusable,
parameterized components into fully expanded HTML, recomputing only what
changed on each edit.

Key Features:
  • Component templates with parameters, defaults, and named slots
  • Dependency-tracked incremental rebuilds
  • Markdown content with YAML frontmatter and layouts
  • Development server with live reload and error overlay
  • SEO tag injection, sitemap/RSS generation, minification

Quick Start:
  eldroid init my-site            Scaffold a new site
  eldroid serve                   Start the development server
  eldroid build --release         Produce the publishable output
  eldroid list                    List registered components

Command Aliases (for faster typing):
  build (b), serve (s), watch (w), list (l), init (i)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .eldroid.yml, can also use ELDROID_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Accept snake_case spellings of multi-word flags so flag names line up
	// with their config file keys (--output_dir and --output-dir both work).
	rootCmd.PersistentFlags().SetNormalizeFunc(normalizeFlagName)
}

func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initConfig locates and reads the configuration file and enables ELDROID_*
// environment overrides. A missing config file is fine: defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ELDROID_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".eldroid")
	}

	viper.SetEnvPrefix("ELDROID")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the resolved log settings.
func newLogger() logging.Logger {
	cfg := logging.DefaultConfig()
	if level := viper.GetString("log_level"); level != "" {
		cfg.Level = logging.ParseLevel(level)
	}
	if format := viper.GetString("log_format"); format != "" {
		cfg.Format = format
	}
	return logging.NewLogger(cfg)
}
