package extractor

import (
	"strings"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

// Keyword sets checked against lower-cased availability text. The positive
// set is checked before the negative set so ambiguous text resolves
// deterministically.
var (
	positiveKeywords = []string{
		"in stock",
		"instock",
		"add to cart",
		"add to basket",
		"buy now",
		"ships today",
	}
	negativeKeywords = []string{
		"out of stock",
		"outofstock",
		"sold out",
		"soldout",
		"unavailable",
		"discontinued",
		"notify me",
	}
)

// ClassifyAvailability maps free-form stock text to the tri-state signal.
func ClassifyAvailability(text string) monitor.Availability {
	lowered := strings.ToLower(text)
	for _, kw := range positiveKeywords {
		if strings.Contains(lowered, kw) {
			return monitor.AvailabilityAvailable
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lowered, kw) {
			return monitor.AvailabilityUnavailable
		}
	}
	return monitor.AvailabilityUnknown
}
