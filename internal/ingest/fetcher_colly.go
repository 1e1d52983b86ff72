package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const defaultUserAgent = "opportunity-matcher/1.0 (+https://github.com/david/opportunity-matcher)"

// collectorSettings is the resolved fetch configuration for one source.
type collectorSettings struct {
	UserAgent      string
	RequestTimeout time.Duration
	DomainDelay    time.Duration
	MaxRetries     int
	MaxBodySize    int
}

func resolveSettings(cfg FetchConfig, userAgent string) collectorSettings {
	s := collectorSettings{
		UserAgent:      userAgent,
		RequestTimeout: 30 * time.Second,
		DomainDelay:    1 * time.Second,
		MaxRetries:     2,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	if cfg.TimeoutSeconds > 0 {
		s.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.RateLimitRPS > 0 {
		s.DomainDelay = time.Duration(float64(time.Second) / cfg.RateLimitRPS)
	}
	if cfg.MaxRetries > 0 {
		s.MaxRetries = cfg.MaxRetries
	}
	return s
}

// buildCollector creates a rate-limited, sequential collector bound to ctx.
func buildCollector(ctx context.Context, s collectorSettings, allowedHosts ...string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(s.UserAgent),
		colly.MaxBodySize(s.MaxBodySize),
		colly.DetectCharset(),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	}
	if len(allowedHosts) > 0 {
		opts = append(opts, colly.AllowedDomains(allowedHosts...))
	}

	c := colly.NewCollector(opts...)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       s.DomainDelay,
		RandomDelay: s.DomainDelay / 2,
	})
	c.SetRequestTimeout(s.RequestTimeout)
	return c
}

// CollyFetcher downloads single documents such as PDF attachments.
type CollyFetcher struct {
	settings collectorSettings
	log      *zap.Logger
}

func NewCollyFetcher(cfg FetchConfig, userAgent string, log *zap.Logger) *CollyFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &CollyFetcher{settings: resolveSettings(cfg, userAgent), log: log}
}

// Fetch retries failed requests with a linear backoff.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	c := buildCollector(ctx, f.settings)

	var result *FetchedDocument
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	for attempt := 0; attempt <= f.settings.MaxRetries; attempt++ {
		if attempt > 0 {
			f.log.Debug("retrying fetch", zap.String("url", targetURL), zap.Int("attempt", attempt), zap.Error(fetchErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * f.settings.DomainDelay):
			}
		}

		fetchErr = nil
		if err := c.Visit(targetURL); err != nil && fetchErr == nil {
			fetchErr = err
		}
		if result != nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if fetchErr == nil {
		fetchErr = fmt.Errorf("no response received")
	}
	return nil, fmt.Errorf("fetch %s failed after %d retries: %w", targetURL, f.settings.MaxRetries, fetchErr)
}
