package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldroidTech/eldroid-ssg/internal/engine"
	"github.com/EldroidTech/eldroid-ssg/internal/registry"
	"github.com/EldroidTech/eldroid-ssg/internal/scanner"
	"github.com/EldroidTech/eldroid-ssg/internal/vars"
)

func TestNormalizeFlagName(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	assert.Equal(t, pflag.NormalizedName("output-dir"), normalizeFlagName(fs, "output_dir"))
	assert.Equal(t, pflag.NormalizedName("output-dir"), normalizeFlagName(fs, "output-dir"))
	assert.Equal(t, pflag.NormalizedName("port"), normalizeFlagName(fs, "port"))
}

func TestFormatParams(t *testing.T) {
	tests := []struct {
		name     string
		manifest componentManifest
		want     string
	}{
		{
			name:     "no params",
			manifest: componentManifest{ID: "nav"},
			want:     "-",
		},
		{
			name: "params without defaults",
			manifest: componentManifest{
				ID:     "button",
				Params: []string{"label", "href"},
			},
			want: "label,href",
		},
		{
			name: "params with defaults",
			manifest: componentManifest{
				ID:       "card",
				Params:   []string{"title", "width"},
				Defaults: map[string]string{"width": "300"},
			},
			want: `title,width="300"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatParams(tt.manifest))
		})
	}
}

func TestInitScaffold(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, runInit(initCmd, []string{dir}))

	for _, rel := range []string{
		".eldroid.yml",
		"variables.toml",
		"components/layouts/base.html",
		"components/nav.html",
		"components/footer.html",
		"content/index.md",
	} {
		_, err := os.Stat(filepath.Join(dir, rel))
		assert.NoError(t, err, "expected %s to exist", rel)
	}

	// A second init into the same directory must refuse rather than clobber.
	err := runInit(initCmd, []string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".eldroid.yml exists")
}

// TestInitScaffoldBuilds drives the scaffolded starter site through the real
// scanner and engine: the generated layout, nav, footer, and index page must
// build cleanly out of the box.
func TestInitScaffoldBuilds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runInit(initCmd, []string{dir}))

	store, err := vars.Load(dir, false)
	require.NoError(t, err)

	eng, err := engine.New(registry.NewComponentRegistry(), engine.Options{
		Vars: store.Lookup,
	})
	require.NoError(t, err)

	src := scanner.New(filepath.Join(dir, "components"), filepath.Join(dir, "content"), nil)
	changes, err := src.ScanAll()
	require.NoError(t, err)
	require.NotEmpty(t, changes)

	summary, err := eng.ApplyChanges(context.Background(), changes)
	require.NoError(t, err)
	require.True(t, summary.OK(), summary.Report())
	assert.Empty(t, summary.Degraded)

	out, ok := eng.Page("index")
	require.True(t, ok)
	assert.Contains(t, out.HTML, "<nav>")
	assert.Contains(t, out.HTML, "Built with eldroid")
	assert.Contains(t, out.HTML, "<title>Welcome</title>")
	assert.Contains(t, out.HTML, filepath.Base(dir), "nav should resolve @{var(\"site_name\")}")
}
