// Package config provides configuration management for eldroid-ssg using
// Viper for flexible configuration loading from files, environment variables,
// and command-line flags.
//
// The configuration system supports the .eldroid.yml project file,
// environment variable overrides with the ELDROID_ prefix, and validation.
// It manages site identity (used by SEO and feed generation), build pipeline
// settings, the development server, and watch-mode behavior.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Site   SiteConfig   `yaml:"site"`
	Build  BuildConfig  `yaml:"build"`
	Server ServerConfig `yaml:"server"`
	Watch  WatchConfig  `yaml:"watch"`
}

// SiteConfig describes the published site. SEO injection, sitemap, and feed
// generation read it; pages can reference it through @{var(...)} variables.
type SiteConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Author      string `yaml:"author"`
	BaseURL     string `yaml:"base_url"`
}

type BuildConfig struct {
	InputDir      string `yaml:"input_dir"`
	OutputDir     string `yaml:"output_dir"`
	ComponentsDir string `yaml:"components_dir"`
	Release       bool   `yaml:"release"`
	Minify        bool   `yaml:"minify"`
	EnableSEO     bool   `yaml:"enable_seo"`
	Analyze       bool   `yaml:"analyze"`
	Clean         bool   `yaml:"clean"`
	Workers       int    `yaml:"workers"`
	MaxDepth      int    `yaml:"max_depth"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type WatchConfig struct {
	DebounceMS int      `yaml:"debounce_ms"`
	Ignore     []string `yaml:"ignore"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle snake_case keys viper cannot map onto struct fields by name.
	if viper.IsSet("site.base_url") {
		config.Site.BaseURL = viper.GetString("site.base_url")
	}
	if viper.IsSet("build.input_dir") {
		config.Build.InputDir = viper.GetString("build.input_dir")
	}
	if viper.IsSet("build.output_dir") {
		config.Build.OutputDir = viper.GetString("build.output_dir")
	}
	if viper.IsSet("build.components_dir") {
		config.Build.ComponentsDir = viper.GetString("build.components_dir")
	}
	if viper.IsSet("build.enable_seo") {
		config.Build.EnableSEO = viper.GetBool("build.enable_seo")
	}
	if viper.IsSet("build.max_depth") {
		config.Build.MaxDepth = viper.GetInt("build.max_depth")
	}
	if viper.IsSet("watch.debounce_ms") {
		config.Watch.DebounceMS = viper.GetInt("watch.debounce_ms")
	}
	if viper.IsSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = viper.GetStringSlice("watch.ignore")
	}

	// Apply defaults for unset values. Workers and MaxDepth stay zero so the
	// engine picks its own defaults (GOMAXPROCS and the renderer ceiling).
	if config.Build.InputDir == "" {
		config.Build.InputDir = "content"
	}
	if config.Build.OutputDir == "" {
		config.Build.OutputDir = "output"
	}
	if config.Build.ComponentsDir == "" {
		config.Build.ComponentsDir = "components"
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Watch.DebounceMS == 0 {
		config.Watch.DebounceMS = 100
	}

	// Release mode turns on minification and the output audit unless the
	// user said otherwise.
	if config.Build.Release {
		if !viper.IsSet("build.minify") {
			config.Build.Minify = true
		}
		if !viper.IsSet("build.analyze") {
			config.Build.Analyze = true
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateBuildConfig(&config.Build); err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	if config.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch config: debounce_ms must not be negative")
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validateBuildConfig validates build configuration values
func validateBuildConfig(config *BuildConfig) error {
	for name, dir := range map[string]string{
		"input_dir":      config.InputDir,
		"output_dir":     config.OutputDir,
		"components_dir": config.ComponentsDir,
	} {
		if err := validatePath(dir); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, dir, err)
		}
	}

	if config.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if config.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	// Reject path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
