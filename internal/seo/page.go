package seo

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/EldroidTech/eldroid-ssg/internal/content"
)

// PageSEO is the per-page metadata feeding tag generation. The JSON field
// names are what inline overrides use.
type PageSEO struct {
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Keywords        []string  `json:"keywords,omitempty"`
	CanonicalURL    string    `json:"canonical_url,omitempty"`
	Path            string    `json:"path,omitempty"`
	Image           string    `json:"image,omitempty"`
	Author          string    `json:"author,omitempty"`
	PublishedDate   time.Time `json:"published_date"`
	LastModified    time.Time `json:"last_modified"`
	Category        string    `json:"category,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	SchemaType      string    `json:"schema_type,omitempty"`
	ChangeFrequency string    `json:"change_frequency,omitempty"`
	Priority        float64   `json:"priority,omitempty"`
}

// FromMetadata derives page SEO data from a content unit's frontmatter.
// List-valued keys (keywords, tags) are comma separated in frontmatter.
func FromMetadata(id string, meta map[string]string) PageSEO {
	page := PageSEO{
		Title:           meta["title"],
		Description:     meta["description"],
		Author:          meta["author"],
		CanonicalURL:    meta["canonical_url"],
		Image:           meta["image"],
		Category:        meta["category"],
		SchemaType:      meta["type"],
		ChangeFrequency: meta["change_frequency"],
		Path:            content.RouteURL(id),
		Keywords:        splitList(meta["keywords"]),
		Tags:            splitList(meta["tags"]),
	}
	if page.Title == "" {
		page.Title = id
	}
	if t, ok := parseDate(meta["date"]); ok {
		page.PublishedDate = t
	}
	if t, ok := parseDate(meta["updated"]); ok {
		page.LastModified = t
	}
	return page
}

// Merge overlays the non-zero fields of an inline override onto the
// frontmatter-derived data.
func (p PageSEO) Merge(o *PageSEO) PageSEO {
	if o == nil {
		return p
	}
	if o.Title != "" {
		p.Title = o.Title
	}
	if o.Description != "" {
		p.Description = o.Description
	}
	if len(o.Keywords) > 0 {
		p.Keywords = o.Keywords
	}
	if o.CanonicalURL != "" {
		p.CanonicalURL = o.CanonicalURL
	}
	if o.Path != "" {
		p.Path = o.Path
	}
	if o.Image != "" {
		p.Image = o.Image
	}
	if o.Author != "" {
		p.Author = o.Author
	}
	if !o.PublishedDate.IsZero() {
		p.PublishedDate = o.PublishedDate
	}
	if !o.LastModified.IsZero() {
		p.LastModified = o.LastModified
	}
	if o.Category != "" {
		p.Category = o.Category
	}
	if len(o.Tags) > 0 {
		p.Tags = o.Tags
	}
	if o.SchemaType != "" {
		p.SchemaType = o.SchemaType
	}
	if o.ChangeFrequency != "" {
		p.ChangeFrequency = o.ChangeFrequency
	}
	if o.Priority != 0 {
		p.Priority = o.Priority
	}
	return p
}

var inlineOverridePattern = regexp.MustCompile(`(?s)<!--\s*SEO\s*(\{.*?\})\s*-->`)

// ParseInlineOverride extracts a <!-- SEO {...json...} --> comment from a
// document. Returns nil when no override is present; a malformed payload is
// an error so the caller can surface it without dropping the page.
func ParseInlineOverride(doc string) (*PageSEO, error) {
	match := inlineOverridePattern.FindStringSubmatch(doc)
	if match == nil {
		return nil, nil
	}

	var page PageSEO
	if err := json.Unmarshal([]byte(match[1]), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// canonical resolves the page's canonical URL: an explicit canonical_url wins,
// otherwise the site base URL joined with the page route.
func (p PageSEO) canonical(cfg Config) string {
	if p.CanonicalURL != "" {
		return p.CanonicalURL
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	path := p.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// jsonLD is the schema.org structured data block attached to each page.
type jsonLD struct {
	Context             string        `json:"@context"`
	Type                string        `json:"@type"`
	Headline            string        `json:"headline"`
	Description         string        `json:"description,omitempty"`
	URL                 string        `json:"url"`
	Image               []string      `json:"image,omitempty"`
	Author              *jsonLDAuthor `json:"author,omitempty"`
	Publisher           *jsonLDOrg    `json:"publisher,omitempty"`
	DatePublished       string        `json:"datePublished,omitempty"`
	DateModified        string        `json:"dateModified,omitempty"`
	IsAccessibleForFree bool          `json:"isAccessibleForFree"`
	Keywords            string        `json:"keywords,omitempty"`
	ArticleSection      string        `json:"articleSection,omitempty"`
}

type jsonLDAuthor struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type jsonLDOrg struct {
	Type string       `json:"@type"`
	Name string       `json:"name"`
	Logo *jsonLDImage `json:"logo,omitempty"`
}

type jsonLDImage struct {
	Type string `json:"@type"`
	URL  string `json:"url"`
}

func structuredData(page PageSEO, cfg Config) jsonLD {
	schemaType := page.SchemaType
	if schemaType == "" {
		schemaType = "Article"
	}

	ld := jsonLD{
		Context:             "https://schema.org",
		Type:                schemaType,
		Headline:            page.Title,
		Description:         page.Description,
		URL:                 page.canonical(cfg),
		IsAccessibleForFree: true,
		Keywords:            strings.Join(page.Tags, ", "),
		ArticleSection:      page.Category,
	}
	if page.Image != "" {
		ld.Image = []string{page.Image}
	}
	if page.Author != "" {
		ld.Author = &jsonLDAuthor{Type: "Person", Name: page.Author}
	}
	if cfg.Organization != nil {
		org := &jsonLDOrg{Type: "Organization", Name: cfg.Organization.Name}
		if cfg.Organization.Logo != "" {
			org.Logo = &jsonLDImage{Type: "ImageObject", URL: cfg.Organization.Logo}
		}
		ld.Publisher = org
	}
	if !page.PublishedDate.IsZero() {
		ld.DatePublished = page.PublishedDate.Format(time.RFC3339)
	}
	if !page.LastModified.IsZero() {
		ld.DateModified = page.LastModified.Format(time.RFC3339)
	}
	return ld
}
