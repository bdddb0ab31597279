// Package extractor turns raw page content into structured product snapshots
// using per-site fallback selector chains.
package extractor

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

// Extractor applies a SiteConfig's selector chains to page HTML. Each field
// degrades independently; only a page where nothing matched at all is
// considered a parse failure by the caller.
type Extractor struct {
	priceCeiling float64
	logger       *zap.Logger
}

// New constructs an Extractor with the configured price sanity ceiling.
func New(priceCeiling float64, logger *zap.Logger) *Extractor {
	return &Extractor{
		priceCeiling: priceCeiling,
		logger:       logger,
	}
}

// Extract implements monitor.Extractor.
func (e *Extractor) Extract(page monitor.RawPage, cfg monitor.SiteConfig) monitor.Snapshot {
	snap := monitor.Snapshot{Availability: monitor.AvailabilityUnknown}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		e.logger.Warn("html parse failed", zap.String("url", page.URL), zap.Error(err))
		return snap
	}

	if text, ok := firstMatch(doc, cfg.TitleSelectors); ok {
		if title := strings.TrimSpace(text); title != "" {
			snap.Title = &title
		}
	}

	if text, ok := firstMatch(doc, cfg.PriceSelectors); ok {
		price, perr := ParsePrice(text, e.priceCeiling)
		if perr != nil {
			// Selector matched but the text did not yield a sane price.
			// The chain has already been decided; price stays nil for this run.
			e.logger.Debug("price text rejected",
				zap.String("url", page.URL),
				zap.String("text", truncate(text, 80)),
				zap.Error(perr),
			)
		} else {
			snap.Price = &price
		}
	}

	if text, ok := firstMatch(doc, cfg.AvailabilitySelectors); ok {
		snap.Availability = ClassifyAvailability(text)
	}

	if src, ok := firstImage(doc, cfg.ImageSelectors); ok && src != "" {
		snap.ImageURL = &src
	}

	return snap
}

// firstMatch walks the selector chain in order and returns the readable value
// of the first selector that matches any element. Later selectors are never
// consulted once one matches, even when its text turns out unusable.
func firstMatch(doc *goquery.Document, selectors []string) (string, bool) {
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			text = strings.TrimSpace(sel.AttrOr("content", ""))
		}
		if text == "" {
			text = strings.TrimSpace(sel.AttrOr("href", ""))
		}
		return text, true
	}
	return "", false
}

// firstImage resolves image chains, where the value lives in an attribute
// rather than element text.
func firstImage(doc *goquery.Document, selectors []string) (string, bool) {
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		for _, attr := range []string{"content", "src", "data-src", "href"} {
			if v := strings.TrimSpace(sel.AttrOr(attr, "")); v != "" {
				return v, true
			}
		}
		return "", true
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
