package renderer

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	require.Equal(t, 10*time.Second, cfg.DOMReadyTimeout)
	require.Equal(t, 20*time.Second, cfg.NetworkIdleTimeout)
	require.Equal(t, 40*time.Second, cfg.LoadTimeout)
	require.Greater(t, cfg.LoadTimeout, cfg.NetworkIdleTimeout)
	require.Greater(t, cfg.NetworkIdleTimeout, cfg.DOMReadyTimeout)
	require.NotEmpty(t, cfg.SlowHostPatterns)
	require.NotEmpty(t, cfg.BlockedHostPatterns)
}

func TestDedupSortCapSortsAlphabetically(t *testing.T) {
	in := []string{"b", "a", "b", "  ", "c", "a", "d"}
	require.Equal(t, []string{"a", "b", "c"}, dedupSortCap(in, 3))
	require.Equal(t, []string{"a", "b", "c", "d"}, dedupSortCap(in, 10))
	require.Empty(t, dedupSortCap(nil, 5))

	labels := []string{"button: Zebra", "a: apple", "button: Zebra", "a: mango"}
	got := dedupSortCap(labels, 30)
	require.True(t, sort.StringsAreSorted(got))
	require.Equal(t, []string{"a: apple", "a: mango", "button: Zebra"}, got)
}

func TestDedupCapKeepsOrder(t *testing.T) {
	in := []string{"b", "a", "b", "  ", "c", "a", "d"}
	require.Equal(t, []string{"b", "a", "c"}, dedupCap(in, 3))
	require.Equal(t, []string{"b", "a", "c", "d"}, dedupCap(in, 10))
}

func TestDetectBreadcrumbsSemanticWins(t *testing.T) {
	got := detectBreadcrumbs(
		[]string{"Home", "Shoes", "Running"},
		[]string{"h1: 1. Ignored 2. Trail"},
		"Home / Other",
	)
	require.Equal(t, []string{"Home", "Shoes", "Running"}, got)
}

func TestDetectBreadcrumbsNumberedFallback(t *testing.T) {
	got := detectBreadcrumbs(nil, []string{"h2: 1. Home 2. Shop 3. Shoes"}, "")
	require.Equal(t, []string{"Home", "Shop", "Shoes"}, got)
}

func TestDetectBreadcrumbsSlashFallback(t *testing.T) {
	got := detectBreadcrumbs(nil, nil, "Free shipping | Home / Garden / Tools | Sign in")
	require.Equal(t, []string{"Home", "Garden", "Tools"}, got)
}

func TestDetectBreadcrumbsNone(t *testing.T) {
	require.Nil(t, detectBreadcrumbs(nil, []string{"h1: Welcome"}, "plain text"))
}

func TestBuildPaletteFlagsPureBlack(t *testing.T) {
	got := buildPalette([]string{"rgb(0, 0, 0) x120", "rgb(255, 255, 255) x90"})
	require.Contains(t, got, "pure black present")
	require.NotContains(t, got, "warning: only pure black sampled")

	got = buildPalette([]string{"rgb(0, 0, 0) x120", "rgba(0, 0, 0, 1) x44"})
	require.Contains(t, got, "pure black present")
	require.Contains(t, got, "warning: only pure black sampled")

	got = buildPalette([]string{"rgb(255, 255, 255) x90"})
	require.NotContains(t, got, "pure black present")
	require.NotContains(t, got, "warning: only pure black sampled")
}

func TestBuildPaletteOrdersByCount(t *testing.T) {
	got := buildPalette([]string{"rgb(1, 2, 3) x5", "rgb(9, 9, 9) x50"})
	require.Equal(t, "rgb(9, 9, 9) x50", got[0])
}

func TestLazyReport(t *testing.T) {
	require.Empty(t, lazyReport(lazyAudit{}))
	require.Equal(t, "all 8 images loaded", lazyReport(lazyAudit{Total: 8}))
	require.Equal(t, "3 of 8 images still pending", lazyReport(lazyAudit{Total: 8, Pending: 3}))
}

func TestLazyReportBelowFoldOffenders(t *testing.T) {
	got := lazyReport(lazyAudit{
		Total:      10,
		Pending:    3,
		BelowFold:  4,
		LazyMarked: 1,
		Examples:   []string{`img[src="hero-2.jpg"]`, "img#footer-banner"},
	})
	require.Contains(t, got, "3 of 10 images still pending")
	require.Contains(t, got, "4 below the fold, 1 lazy-attributed")
	require.Contains(t, got, "3 below-fold images lack lazy loading")
	require.Contains(t, got, `img[src="hero-2.jpg"]`)
	require.Contains(t, got, "img#footer-banner")
}

func TestLazyReportCompliantBelowFold(t *testing.T) {
	got := lazyReport(lazyAudit{Total: 6, BelowFold: 2, LazyMarked: 2})
	require.Contains(t, got, "all 6 images loaded")
	require.Contains(t, got, "2 below the fold, 2 lazy-attributed")
	require.NotContains(t, got, "lack lazy loading")
}

func TestBuildSignalsOmitsEmptySections(t *testing.T) {
	got := buildSignals(signalInputs{
		Title:    "Example Shop",
		Headings: []string{"h1: Welcome"},
	})
	require.Contains(t, got, "title: Example Shop")
	require.Contains(t, got, "headings:\n- h1: Welcome")
	require.NotContains(t, got, "breadcrumbs")
	require.NotContains(t, got, "color palette")

	require.Empty(t, buildSignals(signalInputs{}))
}
