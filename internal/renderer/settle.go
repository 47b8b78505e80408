package renderer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// jsForceEagerImages flips common lazy-loading conventions so below-fold
// images start fetching before the wait below.
const jsForceEagerImages = `(() => {
	let flipped = 0;
	for (const img of document.querySelectorAll('img')) {
		if (img.loading === 'lazy') { img.loading = 'eager'; flipped++; }
		const src = img.getAttribute('data-src') || img.getAttribute('data-lazy') || img.getAttribute('data-lazy-src');
		if (src && !img.src) { img.src = src; flipped++; }
	}
	return flipped;
})()`

// jsAwaitImages resolves when a sample of the page's images has finished
// loading, or after the deadline, whichever comes first. It never rejects.
const jsAwaitImages = `(() => {
	const imgs = Array.from(document.images).filter(i => !i.complete).slice(0, %d);
	if (imgs.length === 0) return Promise.resolve(0);
	const all = Promise.all(imgs.map(i => new Promise(res => {
		i.addEventListener('load', () => res(1), { once: true });
		i.addEventListener('error', () => res(0), { once: true });
	})));
	const deadline = new Promise(res => setTimeout(() => res(-1), %d));
	return Promise.race([all.then(() => imgs.length), deadline]);
})()`

// settle runs the dynamic-content protocol after navigation: an initial
// pause, a scroll sweep to trigger lazy loading, an image-load wait, and an
// extra pause for hosts known to hydrate slowly. Settle failures are logged
// and swallowed; extraction proceeds with whatever has rendered.
func (r *Chromedp) settle(tabCtx context.Context, target string) {
	pause(tabCtx, r.cfg.SettleDelay)

	r.scrollSweep(tabCtx)

	if err := r.awaitImages(tabCtx); err != nil {
		r.logger.Debug("image wait failed", zap.String("url", target), zap.Error(err))
	}

	if r.isSlowHost(target) {
		r.logger.Debug("slow host, extra settle", zap.String("url", target))
		pause(tabCtx, r.cfg.SlowHostExtraSettle)
	}
}

// scrollSweep steps through the page height then returns to the top, giving
// intersection observers a chance to fire.
func (r *Chromedp) scrollSweep(tabCtx context.Context) {
	for step := 1; step <= r.cfg.ScrollSteps; step++ {
		js := fmt.Sprintf(
			`window.scrollTo(0, document.body.scrollHeight * %d / %d)`,
			step, r.cfg.ScrollSteps,
		)
		if err := chromedp.Run(tabCtx, chromedp.Evaluate(js, nil)); err != nil {
			r.logger.Debug("scroll step failed", zap.Int("step", step), zap.Error(err))
			return
		}
		pause(tabCtx, r.cfg.ScrollStepDelay)
	}
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(`window.scrollTo(0, 0)`, nil)); err != nil {
		r.logger.Debug("scroll reset failed", zap.Error(err))
	}
	pause(tabCtx, r.cfg.ScrollStepDelay)
}

func (r *Chromedp) awaitImages(tabCtx context.Context) error {
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(jsForceEagerImages, nil)); err != nil {
		return fmt.Errorf("force eager images: %w", err)
	}
	js := fmt.Sprintf(jsAwaitImages, r.cfg.ImageSample, r.cfg.ImageWaitTimeout.Milliseconds())
	var loaded int
	err := chromedp.Run(tabCtx, chromedp.Evaluate(js, &loaded,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		return fmt.Errorf("await images: %w", err)
	}
	return nil
}

func (r *Chromedp) isSlowHost(target string) bool {
	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	for _, pattern := range r.cfg.SlowHostPatterns {
		if strings.Contains(host, pattern) {
			return true
		}
	}
	return false
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
