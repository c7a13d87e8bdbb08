package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/EldroidTech/eldroid-ssg/internal/config"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List registered components",
	Long: `List every component registered from the components directory, with its
source path and optionally its parameters and dependency information.

Examples:
  eldroid list                    # Table of components
  eldroid list -f json            # JSON manifest
  eldroid list -f yaml            # YAML manifest
  eldroid list -d                 # Include invokes / used-by information
  eldroid list -p                 # Include parameters and defaults`,
	RunE: runList,
}

var (
	listFormat     string
	listWithDeps   bool
	listWithParams bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "text", "Output format (text, json, yaml)")
	listCmd.Flags().BoolVarP(&listWithDeps, "with-deps", "d", false, "Include dependency information")
	listCmd.Flags().BoolVarP(&listWithParams, "with-params", "p", false, "Include parameters and defaults")
}

// componentManifest is one component as the list output shows it.
type componentManifest struct {
	ID       string            `json:"id" yaml:"id"`
	Source   string            `json:"source" yaml:"source"`
	Params   []string          `json:"params,omitempty" yaml:"params,omitempty"`
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Invokes  []string          `json:"invokes,omitempty" yaml:"invokes,omitempty"`
	UsedBy   []string          `json:"used_by,omitempty" yaml:"used_by,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	switch listFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", listFormat)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	pipe, err := newPipeline(cfg, newLogger())
	if err != nil {
		return err
	}
	if _, err := pipe.fullBuild(context.Background()); err != nil {
		return fmt.Errorf("failed to load components: %w", err)
	}

	reg := pipe.engine.Registry()
	ids := reg.AllIDs()
	if len(ids) == 0 {
		fmt.Printf("No components found under %s\n", cfg.Build.ComponentsDir)
		return nil
	}

	manifests := make([]componentManifest, 0, len(ids))
	for _, id := range ids {
		unit, ok := reg.Lookup(id)
		if !ok {
			continue
		}
		m := componentManifest{ID: id, Source: unit.SourcePath}
		if listWithParams {
			m.Params = unit.Params
			m.Defaults = unit.Defaults
		}
		if listWithDeps {
			m.Invokes = unit.Targets
			m.UsedBy = pipe.engine.Dependents(id)
		}
		manifests = append(manifests, m)
	}

	switch listFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifests)
	case "yaml":
		data, err := yaml.Marshal(manifests)
		if err != nil {
			return fmt.Errorf("failed to marshal component list: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		return writeComponentTable(os.Stdout, manifests)
	}
}

func writeComponentTable(out *os.File, manifests []componentManifest) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	header := "COMPONENT\tSOURCE"
	if listWithParams {
		header += "\tPARAMS"
	}
	if listWithDeps {
		header += "\tINVOKES\tUSED BY"
	}
	fmt.Fprintln(w, header)

	for _, m := range manifests {
		row := fmt.Sprintf("%s\t%s", m.ID, m.Source)
		if listWithParams {
			row += "\t" + formatParams(m)
		}
		if listWithDeps {
			row += fmt.Sprintf("\t%s\t%s",
				strings.Join(m.Invokes, ","), strings.Join(m.UsedBy, ","))
		}
		fmt.Fprintln(w, row)
	}
	return w.Flush()
}

func formatParams(m componentManifest) string {
	if len(m.Params) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(m.Params))
	for _, p := range m.Params {
		if def, ok := m.Defaults[p]; ok {
			parts = append(parts, fmt.Sprintf("%s=%q", p, def))
		} else {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ",")
}
