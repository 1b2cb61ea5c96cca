package catalog

import (
	"net/url"
	"strings"

	"videostream/aggregatorservice/internal/domain"
)

// Source describes one scrapeable catalog site. SearchPathTemplate carries a
// {query} placeholder; everything else about the site's URL scheme is opaque.
type Source struct {
	Name               string
	BaseURL            string
	SearchPathTemplate string
}

// DefaultSources returns the built-in catalog sites. Both follow the same
// CMS URL conventions but differ in their search path shape.
func DefaultSources() []Source {
	return []Source{
		{
			Name:               "pkcom",
			BaseURL:            "https://www.pkcom.cc",
			SearchPathTemplate: "/vodsearch/{query}-------------.html",
		},
		{
			Name:               "fsyuyou",
			BaseURL:            "https://www.fsyuyou.com",
			SearchPathTemplate: "/fqsiso/-------------.html?wd={query}",
		},
	}
}

func (s Source) SearchURL(query string) string {
	path := strings.ReplaceAll(s.SearchPathTemplate, "{query}", url.QueryEscape(strings.TrimSpace(query)))
	return strings.TrimRight(s.BaseURL, "/") + path
}

func (s Source) Info() domain.CatalogSource {
	return domain.CatalogSource{Name: s.Name, BaseURL: s.BaseURL}
}

// JoinPagePath resolves a scraped page path (relative or absolute) against a
// source base URL.
func JoinPagePath(baseURL, pagePath string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(pagePath))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
