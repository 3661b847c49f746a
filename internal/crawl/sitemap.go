package crawl

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// SitemapSource lists the page locations a site publishes in its sitemap.
type SitemapSource interface {
	Locations(ctx context.Context, baseURL string) ([]string, error)
}

// SitemapConfig controls the sitemap collector.
type SitemapConfig struct {
	UserAgent string
	Timeout   time.Duration
	// MaxNested bounds how many child sitemaps of a sitemap index are followed.
	MaxNested int
}

// SitemapFetcher reads sitemap.xml over plain HTTP with a colly collector. A
// sitemap index is followed one level deep.
type SitemapFetcher struct {
	cfg  SitemapConfig
	base *colly.Collector
	log  *zap.Logger
}

// NewSitemapFetcher builds a SitemapFetcher.
func NewSitemapFetcher(cfg SitemapConfig, logger *zap.Logger) *SitemapFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxNested <= 0 {
		cfg.MaxNested = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.MaxDepth(2))
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &SitemapFetcher{cfg: cfg, base: c, log: logger}
}

// Locations returns every <loc> of the site's sitemap, in document order.
func (f *SitemapFetcher) Locations(ctx context.Context, baseURL string) ([]string, error) {
	collector := f.base.Clone()

	var (
		mu       sync.Mutex
		locs     []string
		nested   int
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		if loc := strings.TrimSpace(e.Text); loc != "" {
			mu.Lock()
			locs = append(locs, loc)
			mu.Unlock()
		}
	})
	collector.OnXML("//sitemapindex/sitemap/loc", func(e *colly.XMLElement) {
		loc := strings.TrimSpace(e.Text)
		if loc == "" || nested >= f.cfg.MaxNested {
			return
		}
		nested++
		if err := e.Request.Visit(loc); err != nil {
			f.log.Debug("child sitemap skipped", zap.String("url", loc), zap.Error(err))
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		// Only the root sitemap decides success.
		if r != nil && r.Request != nil && r.Request.Depth > 1 {
			return
		}
		fetchErr = err
	})

	root := strings.TrimRight(baseURL, "/") + "/sitemap.xml"
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(root)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("sitemap fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", root, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", root, fetchErr)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	return append([]string(nil), locs...), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          32,
		IdleConnTimeout:       60 * time.Second,
	}
}
