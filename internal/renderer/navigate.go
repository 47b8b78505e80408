package renderer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pagevet/pagevet/internal/audit"
)

// navOutcome is what a navigation strategy observed after its wait
// condition was met.
type navOutcome struct {
	FinalURL string
	Title    string
	Status   int
}

// navStrategy is one rung of the fallback chain.
type navStrategy struct {
	Name    string
	Timeout time.Duration
}

// Hosts that indicate bot mitigation or a generic redirect target rather
// than real page content.
var defaultBlockedHostPatterns = []string{
	"captcha",
	"challenge",
	"cf-chl",
	"perimeterx",
	"px-captcha",
	"datadome",
	"validate.perfdrive.com",
	"geo.captcha-delivery.com",
}

var blockedTitleFragments = []string{
	"just a moment",
	"access denied",
	"are you a robot",
	"attention required",
	"verify you are human",
}

func (r *Chromedp) strategies() []navStrategy {
	return []navStrategy{
		{Name: "domready", Timeout: r.cfg.DOMReadyTimeout},
		{Name: "networkidle", Timeout: r.cfg.NetworkIdleTimeout},
		{Name: "load", Timeout: r.cfg.LoadTimeout},
	}
}

// navigate walks the fallback chain in order, first success wins. Timeouts
// and bot-mitigation landings fall through to the next strategy;
// non-timeout errors abort immediately.
func (r *Chromedp) navigate(tabCtx context.Context, target string, tracker *networkTracker) (navOutcome, string, error) {
	run := func(ctx context.Context, s navStrategy) (navOutcome, error) {
		return r.runStrategy(ctx, target, s, tracker)
	}
	blocked := func(o navOutcome) bool {
		return isBlockedOutcome(o, r.cfg.BlockedHostPatterns)
	}
	return runFallbackChain(tabCtx, r.strategies(), run, blocked, r.logger)
}

// runFallbackChain contains the strategy-ordering logic, separated from
// chromedp so the ordering is testable with stub runners.
func runFallbackChain(
	ctx context.Context,
	strategies []navStrategy,
	run func(ctx context.Context, s navStrategy) (navOutcome, error),
	blocked func(navOutcome) bool,
	logger *zap.Logger,
) (navOutcome, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var lastErr error
	for _, s := range strategies {
		outcome, err := run(ctx, s)
		if err != nil {
			if isNavTimeout(err) {
				logger.Debug("navigation strategy timed out", zap.String("strategy", s.Name))
				lastErr = err
				continue
			}
			return navOutcome{}, "", fmt.Errorf("%w: strategy %s: %v", audit.ErrNavigation, s.Name, err)
		}
		if blocked(outcome) {
			logger.Debug("navigation strategy landed on blocked target",
				zap.String("strategy", s.Name),
				zap.String("final_url", outcome.FinalURL),
			)
			lastErr = fmt.Errorf("blocked target %q", outcome.FinalURL)
			continue
		}
		return outcome, s.Name, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no strategies configured")
	}
	return navOutcome{}, "", fmt.Errorf("%w: all strategies exhausted: %v", audit.ErrNavigation, lastErr)
}

// runStrategy performs one navigation attempt with the strategy's wait
// condition and timeout.
func (r *Chromedp) runStrategy(tabCtx context.Context, target string, s navStrategy, tracker *networkTracker) (navOutcome, error) {
	taskCtx, cancel := context.WithTimeout(tabCtx, s.Timeout)
	defer cancel()

	actions := []chromedp.Action{
		r.setupAction(),
		chromedp.Navigate(target),
	}
	switch s.Name {
	case "domready":
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	case "networkidle":
		actions = append(actions,
			chromedp.WaitReady("body", chromedp.ByQuery),
			tracker.waitQuiet(r.cfg.NetworkQuiet),
		)
	default:
		actions = append(actions, chromedp.Poll(`document.readyState === "complete"`, nil))
	}

	var outcome navOutcome
	actions = append(actions,
		chromedp.Location(&outcome.FinalURL),
		chromedp.Title(&outcome.Title),
	)
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return navOutcome{}, err
	}
	outcome.Status = tracker.documentStatus()
	return outcome, nil
}

func isNavTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// isBlockedOutcome treats captcha/redirect hosts, bot-mitigation titles,
// and empty responses as strategy failures.
func isBlockedOutcome(o navOutcome, hostPatterns []string) bool {
	if o.FinalURL == "" {
		return true
	}
	parsed, err := url.Parse(o.FinalURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(parsed.Host)
	for _, pattern := range hostPatterns {
		if strings.Contains(host, pattern) {
			return true
		}
	}
	title := strings.ToLower(o.Title)
	for _, fragment := range blockedTitleFragments {
		if strings.Contains(title, fragment) {
			return true
		}
	}
	return false
}

// networkTracker listens to CDP network events so the networkidle strategy
// can wait for a quiet window, and records the main document status code.
type networkTracker struct {
	inflight  atomic.Int64
	lastEvent atomic.Int64
	status    atomic.Int64
}

func newNetworkTracker(tabCtx context.Context) *networkTracker {
	t := &networkTracker{}
	t.touch()
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.inflight.Add(1)
			t.touch()
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			t.inflight.Add(-1)
			t.touch()
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument && t.status.Load() == 0 {
				t.status.Store(int64(e.Response.Status))
			}
			t.touch()
		}
	})
	return t
}

func (t *networkTracker) touch() {
	t.lastEvent.Store(time.Now().UnixNano())
}

func (t *networkTracker) documentStatus() int {
	return int(t.status.Load())
}

// waitQuiet blocks until no network activity has been observed for the
// quiet window, polling in small steps so the strategy timeout stays in
// control.
func (t *networkTracker) waitQuiet(quiet time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		const step = 100 * time.Millisecond
		for {
			idleFor := time.Since(time.Unix(0, t.lastEvent.Load()))
			if t.inflight.Load() <= 0 && idleFor >= quiet {
				return nil
			}
			timer := time.NewTimer(step)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	})
}
