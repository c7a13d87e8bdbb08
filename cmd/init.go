package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init [directory]",
	Aliases: []string{"i"},
	Short:   "Scaffold a new site",
	Long: `Create the directory layout and starter files for a new site: a content
tree, a components library, the .eldroid.yml configuration, and the site
variables file.

Examples:
  eldroid init                    # Scaffold into the current directory
  eldroid init my-site            # Scaffold into ./my-site
  eldroid init --minimal          # Directories and config only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initName    string
	initMinimal bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initName, "name", "", "Site name (defaults to the directory name)")
	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Skip example content and components")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	name := initName
	if name == "" {
		name = filepath.Base(absDir)
	}

	if _, err := os.Stat(filepath.Join(dir, ".eldroid.yml")); err == nil {
		return fmt.Errorf("%s already contains an eldroid site (.eldroid.yml exists)", dir)
	}

	for _, sub := range []string{"content", "components", "components/layouts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	files := map[string]string{
		".eldroid.yml":   fmt.Sprintf(initConfigTemplate, name),
		"variables.toml": fmt.Sprintf(initVariablesTemplate, name),
		".gitignore":     initGitignoreTemplate,
	}
	if !initMinimal {
		files["components/layouts/base.html"] = initLayoutTemplate
		files["components/nav.html"] = initNavTemplate
		files["components/footer.html"] = initFooterTemplate
		files["content/index.md"] = initIndexTemplate
	}

	for rel, body := range files {
		path := filepath.Join(dir, rel)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", rel, err)
		}
	}

	fmt.Printf("Initialized site %q in %s\n\nNext steps:\n", name, dir)
	if dir != "." {
		fmt.Printf("  cd %s\n", dir)
	}
	fmt.Println("  eldroid serve")
	return nil
}

const initConfigTemplate = `site:
  name: %q
  description: ""
  base_url: "http://localhost:8080"

build:
  input_dir: "content"
  output_dir: "output"
  components_dir: "components"

server:
  host: "localhost"
  port: 8080

watch:
  debounce_ms: 100
`

const initVariablesTemplate = `site_name = %q
`

const initGitignoreTemplate = `output/
.env
`

const initLayoutTemplate = `@{default("title", "Home")}<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>@{title}</title>
</head>
<body>
<c-nav/>
<main>@{yield}</main>
<c-footer/>
</body>
</html>
`

const initNavTemplate = `<nav><a href="/">@{var("site_name")}</a></nav>
`

const initFooterTemplate = `<footer><p>Built with eldroid.</p></footer>
`

const initIndexTemplate = `---
title: Welcome
layout: layouts/base
---
# Welcome

This page was generated by **eldroid**. Edit ` + "`content/index.md`" + ` and save
to see the live reload.
`
