// Package renderer drives a headless browser through a layered navigation
// and extraction protocol, producing the page context the judge consumes.
package renderer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pagevet/pagevet/internal/audit"
	"github.com/pagevet/pagevet/internal/metrics"
)

// Config controls navigation timeouts and the dynamic-content settle
// protocol.
type Config struct {
	UserAgent           string
	DOMReadyTimeout     time.Duration
	NetworkIdleTimeout  time.Duration
	LoadTimeout         time.Duration
	NetworkQuiet        time.Duration
	SettleDelay         time.Duration
	ScrollSteps         int
	ScrollStepDelay     time.Duration
	ImageWaitTimeout    time.Duration
	ImageSample         int
	HostQPS             float64
	SlowHostPatterns    []string
	SlowHostExtraSettle time.Duration
	BlockedHostPatterns []string
}

func (c *Config) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "pagevet-audit/0.1"
	}
	if c.DOMReadyTimeout <= 0 {
		c.DOMReadyTimeout = 10 * time.Second
	}
	if c.NetworkIdleTimeout <= 0 {
		c.NetworkIdleTimeout = 20 * time.Second
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 40 * time.Second
	}
	if c.NetworkQuiet <= 0 {
		c.NetworkQuiet = 500 * time.Millisecond
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 800 * time.Millisecond
	}
	if c.ScrollSteps <= 0 {
		c.ScrollSteps = 6
	}
	if c.ScrollStepDelay <= 0 {
		c.ScrollStepDelay = 250 * time.Millisecond
	}
	if c.ImageWaitTimeout <= 0 {
		c.ImageWaitTimeout = 4 * time.Second
	}
	if c.ImageSample <= 0 {
		c.ImageSample = 15
	}
	if len(c.SlowHostPatterns) == 0 {
		c.SlowHostPatterns = []string{"amazon.", "ebay.", "etsy.", "aliexpress."}
	}
	if c.SlowHostExtraSettle <= 0 {
		c.SlowHostExtraSettle = 1500 * time.Millisecond
	}
	if len(c.BlockedHostPatterns) == 0 {
		c.BlockedHostPatterns = defaultBlockedHostPatterns
	}
}

// Chromedp implements audit.Renderer using headless Chrome. A single
// browser session is exclusively owned by one in-flight render call.
type Chromedp struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	sem           chan struct{}
	hostLimiters  sync.Map
}

// New starts the browser allocator and warms up a browser context.
func New(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Chromedp{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		sem:           make(chan struct{}, 1),
	}, nil
}

// Close tears down the chromedp browser and allocator contexts.
func (r *Chromedp) Close(_ context.Context) error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocCancel()
	return nil
}

// Render navigates to the URL through the fallback chain, settles dynamic
// content, and extracts the page context. The tab is closed on every exit
// path.
func (r *Chromedp) Render(ctx context.Context, rawURL string) (audit.PageContext, error) {
	normalized, err := audit.NormalizeScanURL(rawURL)
	if err != nil {
		return audit.PageContext{}, err
	}

	release, err := r.acquireSlot(ctx)
	if err != nil {
		return audit.PageContext{}, err
	}
	defer release()

	if err := r.waitHostBudget(ctx, normalized); err != nil {
		return audit.PageContext{}, fmt.Errorf("render rate limit: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	stopForward := forwardCancel(ctx, cancelTab)
	defer stopForward()

	tracker := newNetworkTracker(tabCtx)

	outcome, strategyName, err := r.navigate(tabCtx, normalized, tracker)
	if err != nil {
		return audit.PageContext{}, err
	}
	metrics.ObserveRenderStrategy(strategyName)
	r.logger.Debug("navigation settled",
		zap.String("url", normalized),
		zap.String("strategy", strategyName),
		zap.String("final_url", outcome.FinalURL),
	)

	r.settle(tabCtx, normalized)

	pc := r.extract(tabCtx, normalized)
	return pc, nil
}

func (r *Chromedp) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case r.sem <- struct{}{}:
		return func() { <-r.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

func (r *Chromedp) waitHostBudget(ctx context.Context, rawURL string) error {
	if r.cfg.HostQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := r.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(r.cfg.HostQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

// setupAction enables network events and overrides the user agent before
// the first navigation in a tab.
func (r *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
