package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	saved []RawOpportunity
	fail  map[string]bool
}

func (s *recordingSink) SaveRaw(_ context.Context, raw RawOpportunity) error {
	if s.fail[raw.Title] {
		return errors.New("rejected")
	}
	s.saved = append(s.saved, raw)
	return nil
}

const listingPage1 = `<html><body>
<div class="item"><a href="/notice/1"><h3>Electric Propulsion Topic</h3></a><span class="id">N-1</span><p>Hall thruster work.</p></div>
<div class="item"><a href="/notice/2?utm_source=feed"><h3>Lunar Regolith Handling</h3></a><p>Phase II</p></div>
<div class="item"><p>No link here</p></div>
<a class="next" href="/listing?page=2">Next</a>
</body></html>`

const listingPage2 = `<html><body>
<div class="item"><a href="/notice/3"><h3>Optical Terminal Pointing</h3></a></div>
<div class="item"><a href="/notice/1"><h3>Electric Propulsion Topic</h3></a></div>
<a class="next" href="/listing">Back to start</a>
</body></html>`

func newListingServer(t *testing.T, listingHits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(listingHits, 1)
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, listingPage2)
			return
		}
		fmt.Fprint(w, listingPage1)
	})
	mux.HandleFunc("/notice/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><main>
<div class="body"><p>Details for %s</p></div>
<span class="deadline">2027-01-15</span>
<span class="amount">$250K</span>
</main></body></html>`, r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func listingConfig(baseURL string) SourceConfig {
	return SourceConfig{
		ID:         "test-listing",
		Agency:     "NASA",
		AgencyCode: "8000",
		Strategy:   StrategyHTMLListing,
		BaseURL:    baseURL + "/listing",
		MaxPages:   5,
		Fetch:      FetchConfig{RateLimitRPS: 200, TimeoutSeconds: 5},
		Selectors: SelectorConfig{
			Container: ".item",
			Link:      "a",
			Title:     "h3",
			NoticeID:  ".id",
			Content:   "p",
		},
		Pagination: PaginationConfig{Next: "a.next"},
		Detail: DetailConfig{
			Enabled: true,
			Selectors: DetailSelectorConfig{
				Container:   "main",
				Description: ".body",
				Deadline:    ".deadline",
				Amount:      ".amount",
			},
		},
	}
}

func TestHTMLListingStrategy_PaginatesAndEnriches(t *testing.T) {
	var hits int32
	srv := newListingServer(t, &hits)
	sink := &recordingSink{}
	strategy := &HTMLListingStrategy{Log: zaptest.NewLogger(t)}

	stats, err := strategy.Run(context.Background(), listingConfig(srv.URL), sink)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalFound)
	assert.Equal(t, 3, stats.TotalSaved)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "pagination cycle should stop the walk")

	require.Len(t, sink.saved, 3)
	first := sink.saved[0]
	assert.Equal(t, "N-1", first.NoticeID)
	assert.Equal(t, "Electric Propulsion Topic", first.Title)
	assert.Equal(t, srv.URL+"/notice/1", first.URL)
	assert.Equal(t, "NASA", first.Agency)
	assert.Equal(t, "8000", first.AgencyCode)
	assert.Equal(t, "test-listing", first.SourceID)
	assert.Equal(t, "127.0.0.1", first.SourceDomain)
	assert.Equal(t, "2027-01-15", first.RawDeadline)
	assert.Equal(t, "$250K", first.RawAmount)
	assert.Contains(t, first.Description, "Details for /notice/1")

	assert.Equal(t, srv.URL+"/notice/2", sink.saved[1].URL)
	assert.Equal(t, "Optical Terminal Pointing", sink.saved[2].Title)
}

func TestHTMLListingStrategy_CountsSinkErrors(t *testing.T) {
	var hits int32
	srv := newListingServer(t, &hits)
	sink := &recordingSink{fail: map[string]bool{"Lunar Regolith Handling": true}}
	cfg := listingConfig(srv.URL)
	cfg.MaxPages = 1
	cfg.Detail.Enabled = false

	stats, err := (&HTMLListingStrategy{}).Run(context.Background(), cfg, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFound)
	assert.Equal(t, 1, stats.TotalSaved)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, "Hall thruster work.", sink.saved[0].Description)
}

func TestHTMLListingStrategy_FirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := (&HTMLListingStrategy{}).Run(context.Background(), listingConfig(srv.URL), &recordingSink{})
	assert.Error(t, err)
}

func TestHTMLListingStrategy_RequiresContainer(t *testing.T) {
	cfg := listingConfig("https://example.gov")
	cfg.Selectors.Container = ""
	_, err := (&HTMLListingStrategy{}).Run(context.Background(), cfg, &recordingSink{})
	assert.Error(t, err)
}

func TestSeedFileStrategy(t *testing.T) {
	path := writeFile(t, "seed.yaml", `
- notice_id: SEED-1
  title: Cislunar navigation beacons
  url: https://Example.gov/seed/1?utm_campaign=x
  deadline: "2027-03-01"
  award_ceiling: "$1.2M"
  tech_focus: [Navigation & Timing]
- title: Radiation tolerant memory
  agency: AFRL
- description: no title here
`)
	cfg := SourceConfig{ID: "local-seed", Agency: "NASA", AgencyCode: "8000", Strategy: StrategySeedFile, SeedFile: path}
	sink := &recordingSink{fail: map[string]bool{"": true}}

	stats, err := (&SeedFileStrategy{Log: zaptest.NewLogger(t)}).Run(context.Background(), cfg, sink)
	require.NoError(t, err)
	assert.Equal(t, IngestionStats{TotalFound: 3, TotalSaved: 2, Errors: 1}, stats)

	require.Len(t, sink.saved, 2)
	assert.Equal(t, "SEED-1", sink.saved[0].NoticeID)
	assert.Equal(t, "https://example.gov/seed/1", sink.saved[0].URL)
	assert.Equal(t, "example.gov", sink.saved[0].SourceDomain)
	assert.Equal(t, "NASA", sink.saved[0].Agency)
	assert.Equal(t, "$1.2M", sink.saved[0].RawAmount)
	assert.Equal(t, []string{"Navigation & Timing"}, sink.saved[0].Tags)
	assert.Equal(t, "AFRL", sink.saved[1].Agency)
	assert.Equal(t, "local-seed", sink.saved[1].SourceID)
}

func TestSeedFileStrategy_MissingFile(t *testing.T) {
	cfg := SourceConfig{ID: "s", Strategy: StrategySeedFile, SeedFile: "/does/not/exist.yaml"}
	_, err := (&SeedFileStrategy{}).Run(context.Background(), cfg, &recordingSink{})
	assert.Error(t, err)
}

func TestExtractPDFText_RejectsGarbage(t *testing.T) {
	_, err := extractPDFText([]byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestResolveSettings(t *testing.T) {
	s := resolveSettings(FetchConfig{}, "")
	assert.Equal(t, defaultUserAgent, s.UserAgent)
	assert.Equal(t, 2, s.MaxRetries)

	s = resolveSettings(FetchConfig{RateLimitRPS: 4, TimeoutSeconds: 7, MaxRetries: 5}, "ua/1")
	assert.Equal(t, "ua/1", s.UserAgent)
	assert.Equal(t, 250_000_000, int(s.DomainDelay))
	assert.Equal(t, 7_000_000_000, int(s.RequestTimeout))
	assert.Equal(t, 5, s.MaxRetries)
}

func TestCollyFetcher_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	}))
	defer srv.Close()

	f := NewCollyFetcher(FetchConfig{RateLimitRPS: 200, MaxRetries: 2}, "", zaptest.NewLogger(t))
	doc, err := f.Fetch(context.Background(), srv.URL+"/a.pdf")
	require.NoError(t, err)
	defer doc.Body.Close()
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
