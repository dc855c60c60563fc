package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

var ErrInvalidSitemap = errors.New("invalid sitemap")

type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// ParseSitemap returns the page locations of a <urlset> or the child sitemap
// locations of a <sitemapindex>.
func ParseSitemap(data []byte) (pages, children []string, err error) {
	var doc sitemapDoc
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSitemap, err)
	}
	switch doc.XMLName.Local {
	case "urlset":
		for _, u := range doc.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				pages = append(pages, loc)
			}
		}
	case "sitemapindex":
		for _, s := range doc.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				children = append(children, loc)
			}
		}
	default:
		return nil, nil, fmt.Errorf("%w: unexpected root <%s>", ErrInvalidSitemap, doc.XMLName.Local)
	}
	return pages, children, nil
}

// SitemapResolver expands a sitemap into the page URLs to ingest.
type SitemapResolver struct {
	fetcher  *Fetcher
	maxPages int
	logger   *zap.Logger
}

func NewSitemapResolver(fetcher *Fetcher, maxPages int, logger *zap.Logger) *SitemapResolver {
	return &SitemapResolver{
		fetcher:  fetcher,
		maxPages: maxPages,
		logger:   logger.Named("sitemap"),
	}
}

// Resolve follows one level of sitemap index, keeps URLs on the base URL's
// host, drops duplicates and caps the result at maxPages.
func (r *SitemapResolver) Resolve(ctx context.Context, sitemapURL, baseURL string) ([]string, error) {
	page, err := r.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	locs, children, err := ParseSitemap(page.Body)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		if r.maxPages > 0 && len(locs) >= r.maxPages {
			break
		}
		childPage, err := r.fetcher.Fetch(ctx, child)
		if err != nil {
			r.logger.Warn("skip child sitemap", zap.String("url", child), zap.Error(err))
			continue
		}
		childLocs, _, err := ParseSitemap(childPage.Body)
		if err != nil {
			r.logger.Warn("skip child sitemap", zap.String("url", child), zap.Error(err))
			continue
		}
		locs = append(locs, childLocs...)
	}

	return FilterURLs(locs, baseURL, r.maxPages), nil
}

// FilterURLs keeps absolute http(s) URLs on baseURL's host, in order, without
// duplicates, at most max of them (max <= 0 means no cap).
func FilterURLs(locs []string, baseURL string, max int) []string {
	host := ""
	if base, err := url.Parse(baseURL); err == nil {
		host = canonicalHost(base.Host)
	}

	seen := make(map[string]bool, len(locs))
	out := make([]string, 0, len(locs))
	for _, loc := range locs {
		u, err := url.Parse(loc)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if host != "" && canonicalHost(u.Host) != host {
			continue
		}
		u.Fragment = ""
		key := u.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func canonicalHost(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}
