package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// maxAttachments bounds PDF downloads per notice.
const maxAttachments = 3

// HTMLListingStrategy scrapes a paginated listing page with colly, then
// optionally each notice's detail page and PDF attachments.
type HTMLListingStrategy struct {
	UserAgent string
	Log       *zap.Logger

	// Fetcher downloads attachments; nil builds a CollyFetcher per run.
	Fetcher Fetcher
}

func (s *HTMLListingStrategy) Run(ctx context.Context, config SourceConfig, sink RawSink) (IngestionStats, error) {
	stats := IngestionStats{}
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("source", config.ID))

	sel := config.Selectors
	if sel.Container == "" {
		return stats, fmt.Errorf("selector 'container' is required for html_listing strategy")
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil || parsedURL.Host == "" {
		return stats, fmt.Errorf("invalid base URL %q", config.BaseURL)
	}

	maxPages := config.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	settings := resolveSettings(config.Fetch, s.UserAgent)
	collector := buildCollector(ctx, settings, parsedURL.Hostname())
	detailCollector := collector.Clone()

	fetcher := s.Fetcher
	if fetcher == nil {
		fetcher = NewCollyFetcher(config.Fetch, s.UserAgent, log)
	}

	visited := make(map[string]bool)
	var nextPageURL string

	collector.OnHTML(sel.Container, func(e *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}
		raw, ok := listingItem(e, config)
		if !ok {
			return
		}
		if visited[raw.URL] {
			return
		}
		visited[raw.URL] = true
		stats.TotalFound++

		if config.Detail.Enabled {
			if err := s.enrichFromDetail(ctx, &raw, config.Detail, detailCollector, fetcher, log); err != nil {
				log.Warn("detail fetch failed", zap.String("url", raw.URL), zap.Error(err))
			}
		}

		if err := sink.SaveRaw(ctx, raw); err != nil {
			log.Warn("failed to save notice", zap.String("title", raw.Title), zap.Error(err))
			stats.Errors++
			return
		}
		stats.TotalSaved++
	})

	if config.Pagination.Next != "" {
		collector.OnHTML(config.Pagination.Next, func(e *colly.HTMLElement) {
			if nextPageURL == "" {
				nextPageURL = e.Request.AbsoluteURL(e.Attr("href"))
			}
		})
	}

	var pageErr error
	collector.OnError(func(r *colly.Response, err error) {
		pageErr = err
	})

	pagesSeen := make(map[string]bool)
	currentURL := config.BaseURL
	for page := 1; page <= maxPages; page++ {
		canonPage := CanonicalizeURL(currentURL)
		if pagesSeen[canonPage] {
			log.Info("pagination cycle detected, stopping", zap.String("url", canonPage))
			break
		}
		pagesSeen[canonPage] = true

		log.Debug("fetching listing page", zap.Int("page", page), zap.String("url", currentURL))
		nextPageURL = ""
		pageErr = nil

		if err := collector.Visit(currentURL); err != nil && pageErr == nil {
			pageErr = err
		}
		collector.Wait()

		if pageErr != nil {
			stats.Errors++
			if page == 1 {
				return stats, fmt.Errorf("listing page %s: %w", currentURL, pageErr)
			}
			log.Warn("listing page failed", zap.String("url", currentURL), zap.Error(pageErr))
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if nextPageURL == "" {
			break
		}
		currentURL = nextPageURL
	}

	return stats, nil
}

// listingItem reads one listing entry. Entries without a title or link are
// skipped.
func listingItem(e *colly.HTMLElement, config SourceConfig) (RawOpportunity, bool) {
	sel := config.Selectors

	title := normalizeSpace(e.Text)
	if sel.Title != "" {
		title = normalizeSpace(e.ChildText(sel.Title))
	}

	linkAttr := sel.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}
	var link string
	if sel.Link == "" || sel.Link == "." {
		link = strings.TrimSpace(e.Attr(linkAttr))
	} else {
		link = strings.TrimSpace(e.ChildAttr(sel.Link, linkAttr))
	}

	if title == "" || link == "" {
		return RawOpportunity{}, false
	}

	raw := RawOpportunity{
		Title:        title,
		URL:          CanonicalizeURL(e.Request.AbsoluteURL(link)),
		Agency:       config.Agency,
		AgencyCode:   config.AgencyCode,
		SourceID:     config.ID,
		SourceDomain: extractDomain(config.BaseURL),
	}
	if sel.NoticeID != "" {
		raw.NoticeID = normalizeSpace(e.ChildText(sel.NoticeID))
	}
	if sel.Content != "" {
		raw.Description = strings.TrimSpace(e.ChildText(sel.Content))
	}
	if sel.Date != "" {
		raw.RawPosted = normalizeSpace(e.ChildText(sel.Date))
	}
	return raw, true
}

// enrichFromDetail visits the notice page and fills fields the listing lacks.
func (s *HTMLListingStrategy) enrichFromDetail(ctx context.Context, raw *RawOpportunity, config DetailConfig, c *colly.Collector, fetcher Fetcher, log *zap.Logger) error {
	var enrichErr error
	var doc *goquery.Document

	clone := c.Clone()
	clone.OnResponse(func(r *colly.Response) {
		parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			enrichErr = err
			return
		}
		doc = parsed
	})
	clone.OnError(func(r *colly.Response, err error) {
		enrichErr = err
	})

	if err := clone.Visit(raw.URL); err != nil {
		return err
	}
	clone.Wait()

	if enrichErr != nil {
		return enrichErr
	}
	if doc == nil {
		return fmt.Errorf("no response received for detail page")
	}

	attachments := extractDetailContent(raw, config, doc)
	for i, link := range attachments {
		if i >= maxAttachments {
			break
		}
		text, err := fetchPDFText(ctx, fetcher, link)
		if err != nil {
			log.Debug("attachment skipped", zap.String("url", link), zap.Error(err))
			continue
		}
		raw.AttachmentText = strings.TrimSpace(raw.AttachmentText + "\n" + text)
	}
	return nil
}

// extractDetailContent copies detail-page fields into raw and returns the
// absolute URLs of linked attachments.
func extractDetailContent(raw *RawOpportunity, config DetailConfig, doc *goquery.Document) []string {
	sel := config.Selectors
	container := doc.Selection
	if sel.Container != "" {
		if found := doc.Find(sel.Container); found.Length() > 0 {
			container = found
		}
	}

	if sel.Description != "" {
		if htmlContent, err := container.Find(sel.Description).First().Html(); err == nil && strings.TrimSpace(htmlContent) != "" {
			raw.Description = strings.TrimSpace(htmlContent)
		}
	}
	if strings.TrimSpace(raw.Description) == "" {
		if htmlContent, err := container.Html(); err == nil {
			raw.Description = strings.TrimSpace(htmlContent)
		}
	}

	fill := func(selector string, dst *string) {
		if selector == "" {
			return
		}
		if text := normalizeSpace(container.Find(selector).First().Text()); text != "" {
			*dst = text
		}
	}
	fill(sel.Deadline, &raw.RawDeadline)
	fill(sel.Posted, &raw.RawPosted)
	fill(sel.Amount, &raw.RawAmount)
	fill(sel.Agency, &raw.Agency)
	fill(sel.Timeline, &raw.Timeline)

	if sel.Attachments == "" {
		return nil
	}
	base, _ := url.Parse(raw.URL)
	var links []string
	seen := make(map[string]bool)
	container.Find(sel.Attachments).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := ref.String()
		if base != nil {
			abs = base.ResolveReference(ref).String()
		}
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links
}

func fetchPDFText(ctx context.Context, fetcher Fetcher, pdfURL string) (string, error) {
	doc, err := fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return "", err
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(doc.Body)
	if err != nil {
		return "", fmt.Errorf("pdf read failed: %w", err)
	}
	text, err := extractPDFText(content)
	if err != nil {
		return "", fmt.Errorf("pdf text extraction failed: %w", err)
	}
	return text, nil
}

// CanonicalizeURL removes common tracking parameters to ensure stable URLs.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") {
			q.Del(k)
		}
	}
	for _, p := range []string{"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "ref", "session", "s_cid"} {
		q.Del(p)
	}

	u.RawQuery = q.Encode()
	return u.String()
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
