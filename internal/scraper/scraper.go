// Package scraper recovers article metadata from the article page when
// the news provider left it out.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsbot/internal/news"
)

// PageMeta is what a page says about itself.
type PageMeta struct {
	Title    string
	SiteName string
	URL      string
}

type Scraper struct {
	client *http.Client
}

func New(timeout time.Duration) *Scraper {
	return &Scraper{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads the page at url and reads its metadata.
func (s *Scraper) Fetch(ctx context.Context, url string) (*PageMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; newsbot/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	return &PageMeta{
		Title:    extractTitle(doc),
		SiteName: extractSiteName(doc),
		URL:      url,
	}, nil
}

// Enrich fills an empty Title, and an empty SourceID, from the article
// page. Fields the provider did send are left alone.
func (s *Scraper) Enrich(ctx context.Context, a news.Article) (news.Article, error) {
	if a.Link == "" || (a.Title != "" && a.SourceID != "") {
		return a, nil
	}
	meta, err := s.Fetch(ctx, a.Link)
	if err != nil {
		return a, err
	}
	if strings.TrimSpace(a.Title) == "" {
		a.Title = meta.Title
	}
	if a.SourceID == "" {
		a.SourceID = meta.SiteName
	}
	return a, nil
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func extractTitle(doc *goquery.Document) string {
	if t := metaContent(doc, `meta[property="og:title"]`, `meta[name="twitter:title"]`); t != "" {
		return collapse(t)
	}

	selectors := []string{
		"h1",
		"title",
		".article-title",
		".headline",
		".entry-title",
	}

	for _, selector := range selectors {
		title := collapse(doc.Find(selector).First().Text())
		if title != "" {
			return title
		}
	}

	return ""
}

func extractSiteName(doc *goquery.Document) string {
	return metaContent(doc, `meta[property="og:site_name"]`, `meta[name="application-name"]`)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
