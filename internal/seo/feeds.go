package seo

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
)

// SitePage is one rendered page as the feed generators see it.
type SitePage struct {
	ID      string
	Route   string // site-absolute, e.g. "/blog/post.html"
	LastMod time.Time
	Page    PageSEO
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	Xmlns   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// WriteSitemap emits sitemap.xml for every page under dir.
func WriteSitemap(dir, baseURL string, pages []SitePage) error {
	base := strings.TrimRight(baseURL, "/")

	set := urlSet{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  make([]urlEntry, 0, len(pages)),
	}
	for _, page := range pages {
		entry := urlEntry{
			Loc:        base + page.Route,
			ChangeFreq: "weekly",
			Priority:   "0.5",
		}
		if page.Page.ChangeFrequency != "" {
			entry.ChangeFreq = page.Page.ChangeFrequency
		}
		if page.Page.Priority != 0 {
			entry.Priority = fmt.Sprintf("%.1f", page.Page.Priority)
		}
		if !page.LastMod.IsZero() {
			entry.LastMod = page.LastMod.Format(time.RFC3339)
		}
		set.URLs = append(set.URLs, entry)
	}

	return writeXML(filepath.Join(dir, "sitemap.xml"), set)
}

// WriteRobots emits a permissive robots.txt pointing at the sitemap.
func WriteRobots(dir, baseURL string) error {
	base := strings.TrimRight(baseURL, "/")
	body := fmt.Sprintf("User-agent: *\nAllow: /\n\nSitemap: %s/sitemap.xml\n", base)

	path := filepath.Join(dir, "robots.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return errors.NewIOError("write robots.txt", err).WithContext("path", path)
	}
	return nil
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate,omitempty"`
}

// WriteRSS emits feed.xml covering the dated pages, newest first. Pages
// without a published date stay out of the feed.
func WriteRSS(dir string, cfg Config, pages []SitePage) error {
	base := strings.TrimRight(cfg.BaseURL, "/")

	dated := make([]SitePage, 0, len(pages))
	for _, page := range pages {
		if !page.Page.PublishedDate.IsZero() {
			dated = append(dated, page)
		}
	}
	sort.Slice(dated, func(i, j int) bool {
		return dated[i].Page.PublishedDate.After(dated[j].Page.PublishedDate)
	})

	items := make([]rssItem, 0, len(dated))
	for _, page := range dated {
		items = append(items, rssItem{
			Title:       page.Page.Title,
			Link:        base + page.Route,
			Description: page.Page.Description,
			PubDate:     page.Page.PublishedDate.Format(time.RFC1123Z),
		})
	}

	title := cfg.SiteName
	if title == "" {
		title = "Site Feed"
	}
	doc := rssDoc{
		Version: "2.0",
		Channel: rssChannel{
			Title:       title,
			Link:        cfg.BaseURL,
			Description: cfg.DefaultDescription,
			Items:       items,
		},
	}

	return writeXML(filepath.Join(dir, "feed.xml"), doc)
}

func writeXML(path string, payload any) error {
	data, err := xml.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.NewInternalError("marshal "+filepath.Base(path), err)
	}
	body := append([]byte(xml.Header), data...)
	body = append(body, '\n')

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return errors.NewIOError("write "+filepath.Base(path), err).WithContext("path", path)
	}
	return nil
}
