package renderer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pagevet/pagevet/internal/audit"
)

const (
	maxInteractive = 30
	maxHeadings    = 15
	maxColors      = 12
	topTextChars   = 600
)

const jsVisibleText = `(() => {
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, {
		acceptNode(node) {
			const el = node.parentElement;
			if (!el) return NodeFilter.FILTER_REJECT;
			const tag = el.tagName;
			if (tag === 'SCRIPT' || tag === 'STYLE' || tag === 'NOSCRIPT' || tag === 'TEMPLATE') {
				return NodeFilter.FILTER_REJECT;
			}
			const style = window.getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden') {
				return NodeFilter.FILTER_REJECT;
			}
			return NodeFilter.FILTER_ACCEPT;
		}
	});
	const parts = [];
	while (walker.nextNode()) {
		const text = walker.currentNode.textContent.replace(/\s+/g, ' ').trim();
		if (text) parts.push(text);
	}
	return parts.join(' ');
})()`

const jsInteractive = `(() => {
	const out = [];
	for (const el of document.querySelectorAll('a[href], button, [role="button"], input[type="submit"]')) {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') continue;
		const label = (el.innerText || el.value || el.getAttribute('aria-label') || '').replace(/\s+/g, ' ').trim();
		if (label) out.push(el.tagName.toLowerCase() + ': ' + label.slice(0, 80));
	}
	return out;
})()`

const jsHeadings = `(() => {
	const out = [];
	for (const el of document.querySelectorAll('h1, h2, h3')) {
		const text = el.innerText.replace(/\s+/g, ' ').trim();
		if (text) out.push(el.tagName.toLowerCase() + ': ' + text.slice(0, 120));
	}
	return out;
})()`

const jsBreadcrumbSemantic = `(() => {
	const nav = document.querySelector('nav[aria-label*="readcrumb"], .breadcrumb, .breadcrumbs, ol.breadcrumb, [itemtype*="BreadcrumbList"]');
	if (!nav) return [];
	return Array.from(nav.querySelectorAll('li, a, span[itemprop="name"]'))
		.map(el => el.innerText.replace(/\s+/g, ' ').trim())
		.filter(t => t && t.length < 60);
})()`

const jsTopText = `(() => {
	const parts = [];
	let total = 0;
	for (const el of document.querySelectorAll('body *')) {
		if (el.children.length > 0) continue;
		const rect = el.getBoundingClientRect();
		if (rect.top > 900 || rect.height === 0) continue;
		const text = (el.innerText || '').replace(/\s+/g, ' ').trim();
		if (!text) continue;
		parts.push(text);
		total += text.length;
		if (total > %d) break;
	}
	return parts.join(' | ');
})()`

const jsColors = `(() => {
	const counts = new Map();
	const sample = Array.from(document.querySelectorAll('body, body *')).slice(0, 400);
	for (const el of sample) {
		const style = window.getComputedStyle(el);
		for (const c of [style.backgroundColor, style.color]) {
			if (!c || c === 'rgba(0, 0, 0, 0)' || c === 'transparent') continue;
			counts.set(c, (counts.get(c) || 0) + 1);
		}
	}
	return Array.from(counts.entries())
		.sort((a, b) => b[1] - a[1])
		.slice(0, 20)
		.map(([c, n]) => c + ' x' + n);
})()`

const jsLazyAudit = `(() => {
	const fold = window.innerHeight;
	let total = 0, belowFold = 0, lazyMarked = 0, pending = 0;
	const examples = [];
	for (const img of document.images) {
		total++;
		if (!img.complete || img.naturalWidth === 0) pending++;
		if (img.getBoundingClientRect().top <= fold) continue;
		belowFold++;
		if (img.loading === 'lazy' || img.hasAttribute('data-src') || img.hasAttribute('data-lazy')) {
			lazyMarked++;
			continue;
		}
		if (examples.length < 5) {
			const src = (img.currentSrc || img.src || '').slice(0, 80);
			examples.push(img.id ? 'img#' + img.id : 'img[src="' + src + '"]');
		}
	}
	return {total, belowFold, lazyMarked, pending, examples};
})()`

// lazyAudit is the decoded result of jsLazyAudit. Examples identify
// below-fold images that carry no lazy-load attribution.
type lazyAudit struct {
	Total      int      `json:"total"`
	BelowFold  int      `json:"belowFold"`
	LazyMarked int      `json:"lazyMarked"`
	Pending    int      `json:"pending"`
	Examples   []string `json:"examples"`
}

// extract pulls the visible text and structured signals out of the rendered
// page. Every sub-extraction degrades to empty on error so a partially
// broken page still yields a usable context.
func (r *Chromedp) extract(tabCtx context.Context, target string) audit.PageContext {
	var (
		title       string
		visibleText string
		interactive []string
		headings    []string
		crumbs      []string
		topText     string
		colors      []string
		lazy        lazyAudit
	)

	safeEvaluate(tabCtx, r.logger, "title", `document.title`, &title)
	safeEvaluate(tabCtx, r.logger, "visible_text", jsVisibleText, &visibleText)
	safeEvaluate(tabCtx, r.logger, "interactive", jsInteractive, &interactive)
	safeEvaluate(tabCtx, r.logger, "headings", jsHeadings, &headings)
	safeEvaluate(tabCtx, r.logger, "breadcrumbs", jsBreadcrumbSemantic, &crumbs)
	safeEvaluate(tabCtx, r.logger, "top_text", fmt.Sprintf(jsTopText, topTextChars), &topText)
	safeEvaluate(tabCtx, r.logger, "colors", jsColors, &colors)
	safeEvaluate(tabCtx, r.logger, "lazy", jsLazyAudit, &lazy)

	signals := buildSignals(signalInputs{
		Title:       title,
		Headings:    dedupSortCap(headings, maxHeadings),
		Interactive: dedupSortCap(interactive, maxInteractive),
		Breadcrumbs: detectBreadcrumbs(crumbs, headings, topText),
		Palette:     buildPalette(colors),
		Lazy:        lazyReport(lazy),
	})

	return audit.PageContext{
		URL:               target,
		VisibleText:       strings.TrimSpace(visibleText),
		StructuredSignals: signals,
	}
}

// safeEvaluate runs one extraction snippet and logs rather than fails when
// the page rejects it.
func safeEvaluate(ctx context.Context, logger *zap.Logger, name, js string, out any) {
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, out)); err != nil {
		logger.Debug("extraction step failed", zap.String("step", name), zap.Error(err))
	}
}

// dedupSortCap removes duplicates, sorts alphabetically for deterministic
// output, then caps the list length.
func dedupSortCap(items []string, limit int) []string {
	out := dedupCap(items, len(items))
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// dedupCap removes duplicates preserving first-seen order, then caps the
// list length. Used where position carries meaning, like breadcrumb trails.
func dedupCap(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// detectBreadcrumbs tries the semantic markup first, then falls back to a
// numbered-list heuristic in headings, then a "Home / X / Y" pattern in the
// top-of-page text.
func detectBreadcrumbs(semantic, headings []string, topText string) []string {
	cleaned := dedupCap(semantic, 8)
	if len(cleaned) >= 2 {
		return cleaned
	}

	for _, h := range headings {
		_, text, found := strings.Cut(h, ": ")
		if !found {
			text = h
		}
		if parts := splitNumberedTrail(text); len(parts) >= 2 {
			return parts
		}
	}

	for _, sep := range []string{" / ", " › ", " > "} {
		for _, segment := range strings.Split(topText, " | ") {
			if !strings.Contains(segment, sep) {
				continue
			}
			parts := dedupCap(strings.Split(segment, sep), 8)
			if len(parts) >= 2 && len(parts[0]) < 30 {
				return parts
			}
		}
	}
	return nil
}

// splitNumberedTrail recognizes "1. Home 2. Shop 3. Shoes" style trails.
func splitNumberedTrail(text string) []string {
	fields := strings.Fields(text)
	var parts []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, strings.Join(current, " "))
			current = nil
		}
	}
	matched := false
	for _, f := range fields {
		if len(f) >= 2 && f[len(f)-1] == '.' && f[0] >= '1' && f[0] <= '9' {
			matched = true
			flush()
			continue
		}
		current = append(current, f)
	}
	flush()
	if !matched || len(parts) < 2 {
		return nil
	}
	return parts
}

// buildPalette normalizes the sampled colors into "color xN" entries, flags
// whether pure black appears at all, and warns on an all-black sample, a
// common sign of a failed render.
func buildPalette(colors []string) []string {
	out := dedupCap(colors, maxColors)
	sort.SliceStable(out, func(i, j int) bool {
		return paletteCount(out[i]) > paletteCount(out[j])
	})
	blackSeen := false
	blackOnly := len(out) > 0
	for _, c := range out {
		if isPureBlack(c) {
			blackSeen = true
		} else {
			blackOnly = false
		}
	}
	if blackSeen {
		out = append(out, "pure black present")
	}
	if blackOnly {
		out = append(out, "warning: only pure black sampled")
	}
	return out
}

func isPureBlack(entry string) bool {
	return strings.HasPrefix(entry, "rgb(0, 0, 0)") || strings.HasPrefix(entry, "rgba(0, 0, 0")
}

func paletteCount(entry string) int {
	idx := strings.LastIndex(entry, " x")
	if idx < 0 {
		return 0
	}
	n := 0
	for _, ch := range entry[idx+2:] {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
	}
	return n
}

// lazyReport renders the lazy-load compliance line: load progress, the
// below-fold population versus its lazy attribution, and example offenders.
func lazyReport(a lazyAudit) string {
	if a.Total == 0 {
		return ""
	}
	var parts []string
	if a.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d images still pending", a.Pending, a.Total))
	} else {
		parts = append(parts, fmt.Sprintf("all %d images loaded", a.Total))
	}
	if a.BelowFold > 0 {
		parts = append(parts, fmt.Sprintf("%d below the fold, %d lazy-attributed", a.BelowFold, a.LazyMarked))
		if offenders := a.BelowFold - a.LazyMarked; offenders > 0 {
			line := fmt.Sprintf("%d below-fold images lack lazy loading", offenders)
			if len(a.Examples) > 0 {
				line += ", e.g. " + strings.Join(a.Examples, ", ")
			}
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "; ")
}

type signalInputs struct {
	Title       string
	Headings    []string
	Interactive []string
	Breadcrumbs []string
	Palette     []string
	Lazy        string
}

// buildSignals renders the structured signals block consumed by the
// summarizer. Sections with no data are omitted.
func buildSignals(in signalInputs) string {
	var b strings.Builder
	section := func(name string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name)
		b.WriteString(":\n")
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if in.Title != "" {
		b.WriteString("title: ")
		b.WriteString(in.Title)
		b.WriteString("\n")
	}
	section("headings", in.Headings)
	section("breadcrumbs", in.Breadcrumbs)
	section("interactive elements", in.Interactive)
	section("color palette", in.Palette)
	if in.Lazy != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("images: ")
		b.WriteString(in.Lazy)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
