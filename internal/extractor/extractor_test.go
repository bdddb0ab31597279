package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

func testPage(body string) monitor.RawPage {
	return monitor.RawPage{
		URL:        "https://example-shop.com/item/1",
		FinalURL:   "https://example-shop.com/item/1",
		StatusCode: 200,
		Body:       []byte(body),
		FetchedAt:  time.Now().UTC(),
	}
}

func TestParsePriceFormats(t *testing.T) {
	t.Parallel()

	const ceiling = 1_000_000
	tests := []struct {
		text string
		want float64
	}{
		{"$1,299.99", 1299.99},
		{"$ 49.00", 49.00},
		{"R$ 1.299,99", 1299.99},
		{"1.299,99 €", 1299.99},
		{"12,50 €", 12.50},
		{"£899", 899},
		{"Now only 1,299.99 USD", 1299.99},
		{"12,000", 12000},
		{"1299.99", 1299.99},
		{"1299", 1299},
		{"Price: 45,90", 45.90},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePrice(tt.text, ceiling)
			require.NoError(t, err)
			require.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestParsePriceRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "call for price", "N/A", "free"} {
		_, err := ParsePrice(text, 1_000_000)
		require.Error(t, err, text)
	}
}

func TestParsePriceSanityBounds(t *testing.T) {
	t.Parallel()

	// Value above the ceiling is rejected, not clamped.
	_, err := ParsePrice("$2,000,000", 1_000_000)
	require.Error(t, err)

	// A zero price is not a price.
	_, err = ParsePrice("$0.00", 1_000_000)
	require.Error(t, err)
}

func TestSelectorChainShortCircuits(t *testing.T) {
	t.Parallel()

	// Only s2 matches; the s3 probe would produce a different price and must
	// never be consulted.
	body := `<html><body>
		<span class="price-now">$19.99</span>
		<span class="price-probe">$99.99</span>
	</body></html>`

	cfg := monitor.SiteConfig{
		PriceSelectors: []string{".price-missing", ".price-now", ".price-probe"},
	}
	snap := New(1_000_000, zap.NewNop()).Extract(testPage(body), cfg)

	require.NotNil(t, snap.Price)
	require.InDelta(t, 19.99, *snap.Price, 0.001)
}

func TestMatchedSelectorWithBadTextDoesNotFallThrough(t *testing.T) {
	t.Parallel()

	// The first matching selector wins the chain even when its text is not a
	// parsable price; the later selector is not a fallback for bad text.
	body := `<html><body>
		<span class="price-now">contact us</span>
		<span class="price-alt">$10.00</span>
	</body></html>`

	cfg := monitor.SiteConfig{
		PriceSelectors: []string{".price-now", ".price-alt"},
	}
	snap := New(1_000_000, zap.NewNop()).Extract(testPage(body), cfg)

	require.Nil(t, snap.Price)
}

func TestExtractFullSnapshot(t *testing.T) {
	t.Parallel()

	body := `<html><head>
		<meta property="og:image" content="https://cdn.example.com/1.jpg">
	</head><body>
		<h1 class="product-title">Mechanical Keyboard</h1>
		<div class="price">€ 89,90</div>
		<div class="stock-status">In stock, ships today</div>
	</body></html>`

	cfg := monitor.SiteConfig{
		TitleSelectors:        []string{"h1.product-title"},
		PriceSelectors:        []string{".price"},
		AvailabilitySelectors: []string{".stock-status"},
		ImageSelectors:        []string{"meta[property='og:image']"},
	}
	snap := New(1_000_000, zap.NewNop()).Extract(testPage(body), cfg)

	require.NotNil(t, snap.Title)
	require.Equal(t, "Mechanical Keyboard", *snap.Title)
	require.NotNil(t, snap.Price)
	require.InDelta(t, 89.90, *snap.Price, 0.001)
	require.Equal(t, monitor.AvailabilityAvailable, snap.Availability)
	require.NotNil(t, snap.ImageURL)
	require.Equal(t, "https://cdn.example.com/1.jpg", *snap.ImageURL)
	require.False(t, snap.Empty())
}

func TestExtractDegradesPerField(t *testing.T) {
	t.Parallel()

	body := `<html><body><h1>Only A Title</h1></body></html>`
	cfg := monitor.SiteConfig{
		TitleSelectors:        []string{"h1"},
		PriceSelectors:        []string{".price"},
		AvailabilitySelectors: []string{".stock"},
		ImageSelectors:        []string{"img.main"},
	}
	snap := New(1_000_000, zap.NewNop()).Extract(testPage(body), cfg)

	require.NotNil(t, snap.Title)
	require.Nil(t, snap.Price)
	require.Nil(t, snap.ImageURL)
	require.Equal(t, monitor.AvailabilityUnknown, snap.Availability)
	require.False(t, snap.Empty())
}

func TestExtractNothingMatchedIsEmpty(t *testing.T) {
	t.Parallel()

	body := `<html><body><div>redesigned layout</div></body></html>`
	cfg := monitor.SiteConfig{
		TitleSelectors: []string{"h1.product-title"},
		PriceSelectors: []string{".price"},
	}
	snap := New(1_000_000, zap.NewNop()).Extract(testPage(body), cfg)

	require.True(t, snap.Empty())
}

func TestClassifyAvailability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want monitor.Availability
	}{
		{"In Stock", monitor.AvailabilityAvailable},
		{"Add to Cart", monitor.AvailabilityAvailable},
		{"https://schema.org/InStock", monitor.AvailabilityAvailable},
		{"Out of stock", monitor.AvailabilityUnavailable},
		{"SOLD OUT", monitor.AvailabilityUnavailable},
		{"https://schema.org/OutOfStock", monitor.AvailabilityUnavailable},
		{"ships in 3-5 weeks", monitor.AvailabilityUnknown},
		{"", monitor.AvailabilityUnknown},
		// Positive precedence resolves mixed text deterministically.
		{"out of stock online, in stock at your store", monitor.AvailabilityAvailable},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ClassifyAvailability(tt.text), tt.text)
	}
}
