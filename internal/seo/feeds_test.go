package seo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readOutput(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestWriteSitemap(t *testing.T) {
	dir := t.TempDir()
	pages := []SitePage{
		{ID: "index", Route: "/", LastMod: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
		{ID: "blog/post", Route: "/blog/post.html", Page: PageSEO{ChangeFrequency: "daily", Priority: 0.8}},
	}

	require.NoError(t, WriteSitemap(dir, "https://eldroid.example/", pages))

	out := readOutput(t, dir, "sitemap.xml")
	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, `xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`)
	assert.Contains(t, out, "<loc>https://eldroid.example/</loc>")
	assert.Contains(t, out, "<loc>https://eldroid.example/blog/post.html</loc>")
	assert.Contains(t, out, "<lastmod>2026-05-01T12:00:00Z</lastmod>")
	assert.Contains(t, out, "<changefreq>weekly</changefreq>")
	assert.Contains(t, out, "<changefreq>daily</changefreq>")
	assert.Contains(t, out, "<priority>0.8</priority>")
}

func TestWriteRobots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteRobots(dir, "https://eldroid.example"))

	out := readOutput(t, dir, "robots.txt")
	assert.Contains(t, out, "User-agent: *")
	assert.Contains(t, out, "Allow: /")
	assert.Contains(t, out, "Sitemap: https://eldroid.example/sitemap.xml")
}

func TestWriteRSSKeepsDatedPagesNewestFirst(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		SiteName:           "Eldroid",
		BaseURL:            "https://eldroid.example",
		DefaultDescription: "component news",
	}
	pages := []SitePage{
		{ID: "about", Route: "/about.html", Page: PageSEO{Title: "About"}},
		{ID: "blog/older", Route: "/blog/older.html", Page: PageSEO{
			Title:         "Older",
			PublishedDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}},
		{ID: "blog/newer", Route: "/blog/newer.html", Page: PageSEO{
			Title:         "Newer",
			Description:   "latest news",
			PublishedDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		}},
	}

	require.NoError(t, WriteRSS(dir, cfg, pages))

	out := readOutput(t, dir, "feed.xml")
	assert.Contains(t, out, "<title>Eldroid</title>")
	assert.Contains(t, out, "<description>component news</description>")
	assert.Contains(t, out, "<link>https://eldroid.example/blog/newer.html</link>")
	assert.NotContains(t, out, "About")

	newer := strings.Index(out, "<title>Newer</title>")
	older := strings.Index(out, "<title>Older</title>")
	require.GreaterOrEqual(t, newer, 0)
	require.GreaterOrEqual(t, older, 0)
	assert.Less(t, newer, older)

	assert.Contains(t, out, "Wed, 01 Apr 2026 00:00:00 +0000")
}
