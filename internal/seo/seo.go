// Package seo enriches rendered pages with search metadata: meta tags,
// canonical links, OpenGraph and Twitter cards, JSON-LD structured data, plus
// the site-level sitemap, robots.txt and RSS feed.
package seo

import (
	"os"

	"github.com/spf13/viper"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
)

// DefaultConfigFile is the conventional SEO config location at the project
// root.
const DefaultConfigFile = "seo_config.toml"

// Config carries the site-wide SEO settings.
type Config struct {
	SiteName           string
	BaseURL            string
	DefaultDescription string
	DefaultKeywords    []string
	DefaultLanguage    string
	Organization       *Organization
	SocialMedia        *SocialMedia
}

// Organization identifies the publisher in structured data.
type Organization struct {
	Name string
	Logo string
}

// SocialMedia holds the handles referenced by Twitter card tags.
type SocialMedia struct {
	TwitterSite    string
	TwitterCreator string
}

// LoadConfig reads a TOML SEO config. A missing file is not an error; the
// caller falls back to the main site config.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			"failed to read SEO config").WithContext("path", path)
	}

	cfg := &Config{
		SiteName:           v.GetString("site_name"),
		BaseURL:            v.GetString("base_url"),
		DefaultDescription: v.GetString("default_description"),
		DefaultKeywords:    v.GetStringSlice("default_keywords"),
		DefaultLanguage:    v.GetString("default_language"),
	}

	if v.IsSet("organization.name") {
		cfg.Organization = &Organization{
			Name: v.GetString("organization.name"),
			Logo: v.GetString("organization.logo"),
		}
	}
	if v.IsSet("social_media.twitter_site") || v.IsSet("social_media.twitter_creator") {
		cfg.SocialMedia = &SocialMedia{
			TwitterSite:    v.GetString("social_media.twitter_site"),
			TwitterCreator: v.GetString("social_media.twitter_creator"),
		}
	}

	return cfg, nil
}
