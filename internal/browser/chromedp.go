package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/stealth"
)

// ChromedpConfig controls how browser processes are launched.
type ChromedpConfig struct {
	ExecPath          string
	Headless          bool
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

// ChromedpLauncher starts one Chrome process per session.
type ChromedpLauncher struct {
	cfg    ChromedpConfig
	logger *zap.Logger
}

// NewChromedpLauncher builds a launcher.
func NewChromedpLauncher(cfg ChromedpConfig, logger *zap.Logger) *ChromedpLauncher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpLauncher{cfg: cfg, logger: logger}
}

// Launch starts a browser presenting identity and applies the identity to its tab.
func (l *ChromedpLauncher) Launch(ctx context.Context, identity stealth.IdentityProfile) (Driver, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(identity)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	d := &chromedpDriver{
		cfg:           l.cfg,
		logger:        l.logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	// The first Run allocates the browser and binds its lifetime to browserCtx.
	stopStart := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stopStart()
	if err == nil && ctx != nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(browserCtx, l.cfg.NavigationTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(setupCtx, identityActions(identity)...); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("apply identity: %w", err)
	}
	return d, nil
}

func (l *ChromedpLauncher) allocatorOptions(identity stealth.IdentityProfile) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.NoSandbox,
		chromedp.UserAgent(identity.UserAgent),
		chromedp.WindowSize(int(identity.Viewport.Width), int(identity.Viewport.Height)),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

func identityActions(identity stealth.IdentityProfile) []chromedp.Action {
	headers := network.Headers{}
	for k, v := range identity.Headers() {
		headers[k] = v
	}
	return []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			override := emulation.SetUserAgentOverride(identity.UserAgent).
				WithAcceptLanguage(identity.AcceptLanguage).
				WithPlatform(identity.Navigator.Platform)
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			if err := emulation.SetDeviceMetricsOverride(identity.Viewport.Width, identity.Viewport.Height, 1, false).Do(ctx); err != nil {
				return fmt.Errorf("set device metrics: %w", err)
			}
			if identity.Timezone != "" {
				if err := emulation.SetTimezoneOverride(identity.Timezone).Do(ctx); err != nil {
					return fmt.Errorf("set timezone: %w", err)
				}
			}
			if identity.Locale != "" {
				if err := emulation.SetLocaleOverride().WithLocale(identity.Locale).Do(ctx); err != nil {
					return fmt.Errorf("set locale: %w", err)
				}
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealth.InitScript(identity)).Do(ctx); err != nil {
				return fmt.Errorf("add init script: %w", err)
			}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
			return nil
		}),
	}
}

type chromedpDriver struct {
	cfg           ChromedpConfig
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

func (d *chromedpDriver) Navigate(ctx context.Context, url string) (intel.Page, error) {
	if d.browserCtx.Err() != nil {
		return intel.Page{}, fmt.Errorf("navigate %s: %w", url, ErrSessionCrashed)
	}
	taskCtx, cancel := context.WithTimeout(d.browserCtx, d.cfg.NavigationTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	var (
		html     string
		finalURL string
	)
	start := time.Now()
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if d.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(d.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return intel.Page{}, d.classify(ctx, url, err)
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if finalURL == "" {
		finalURL = responseURL
	}
	return intel.Page{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: status,
		Headers:    headers,
		HTML:       html,
		Elapsed:    time.Since(start),
	}, nil
}

// classify separates browser death from ordinary navigation failures.
func (d *chromedpDriver) classify(ctx context.Context, url string, err error) error {
	switch {
	case d.browserCtx.Err() != nil:
		return fmt.Errorf("navigate %s: %w: %v", url, ErrSessionCrashed, err)
	case ctx.Err() != nil:
		return fmt.Errorf("navigate %s: %w", url, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("navigate %s: %w", url, context.DeadlineExceeded)
	default:
		return fmt.Errorf("navigate %s: %w", url, err)
	}
}

func (d *chromedpDriver) DismissCookies(ctx context.Context) bool {
	clickCtx, cancel := context.WithTimeout(d.browserCtx, 3*time.Second)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	for _, sel := range stealth.CookieBannerSelectors {
		var nodes int
		probe := fmt.Sprintf("document.querySelectorAll(%q).length", sel)
		if err := chromedp.Run(clickCtx, chromedp.Evaluate(probe, &nodes)); err != nil || nodes == 0 {
			continue
		}
		if err := chromedp.Run(clickCtx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
			continue
		}
		d.logger.Debug("dismissed cookie banner", zap.String("selector", sel))
		return true
	}
	return false
}

func (d *chromedpDriver) Close() error {
	d.closeOnce.Do(func() {
		d.browserCancel()
		d.allocCancel()
	})
	return nil
}

// forwardCancel cancels the task context when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range resp.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Redirect chains report several documents; the last one is the page.
	m.status = int(resp.Response.Status)
	m.headers = headers
	m.url = resp.Response.URL
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, m.headers.Clone(), m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, url
}
