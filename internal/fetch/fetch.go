package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"bioexplorer/internal/helper"
	"bioexplorer/internal/parser"
)

type FetcherConfig struct {
	OutDir    string
	RateLimit float64 // requests per second
	Timeout   time.Duration
	UserAgent string
	// OnProgress is called once per catalog row, fetched or not.
	OnProgress func(i int, url string)
}

type Stats struct {
	Fetched int
	Skipped int
	Failed  int
}

// Fetcher downloads publication pages and stores their paragraph text as
// N.txt, N being the row of the publication in the index.
type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewFetcher(config FetcherConfig) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1
	}
	return &Fetcher{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// FetchAll walks the catalog in order. Rows without a link and rows whose
// text file already exists are skipped; a failing page is logged and counted
// but does not stop the run.
func (f *Fetcher) FetchAll(ctx context.Context, catalog *parser.Catalog) (Stats, error) {
	var stats Stats
	if err := helper.CreateFolder(f.config.OutDir); err != nil {
		return stats, err
	}

	for i := 0; i < catalog.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		pub, _ := catalog.At(i)
		if f.config.OnProgress != nil {
			f.config.OnProgress(i, pub.URL)
		}

		outFile := filepath.Join(f.config.OutDir, fmt.Sprintf("%d.txt", i))
		if pub.URL == "" || exists(outFile) {
			stats.Skipped++
			continue
		}

		text, err := f.Fetch(ctx, pub.URL)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return stats, err
			}
			log.Warn().Err(err).Int("row", i).Str("url", pub.URL).Msg("Failed to fetch publication")
			stats.Failed++
			continue
		}
		if text == "" {
			log.Warn().Int("row", i).Str("url", pub.URL).Msg("Publication page has no paragraph text")
			stats.Skipped++
			continue
		}
		if err := os.WriteFile(outFile, []byte(text), 0o644); err != nil {
			return stats, fmt.Errorf("failed to write %s: %w", outFile, err)
		}
		stats.Fetched++
	}

	log.Info().
		Int("fetched", stats.Fetched).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("Fetch finished")
	return stats, nil
}

// Fetch downloads one page and returns its paragraph text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, url)
	}
	return ExtractParagraphs(resp.Body)
}

// ExtractParagraphs joins the trimmed text of every <p> element with single
// spaces.
func ExtractParagraphs(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	var parts []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " "), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
