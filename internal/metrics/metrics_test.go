package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeDomain(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeDomain(tc.input); got != tc.expected {
				t.Errorf("SanitizeDomain(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scrapesTotal == nil || alertsFiredTotal == nil ||
		httpRequestsTotal == nil || sweepDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveScrape("https://test.com/p/1", "success", 250*time.Millisecond)
	if val := testutil.ToFloat64(scrapesTotal.WithLabelValues("test.com", "success")); val != 1 {
		t.Errorf("Expected scrapesTotal to be 1, got %f", val)
	}

	ObserveAlertFired()
	if val := testutil.ToFloat64(alertsFiredTotal); val != 1 {
		t.Errorf("Expected alertsFiredTotal to be 1, got %f", val)
	}

	SetDegradedProducts(3)
	if val := testutil.ToFloat64(degradedProducts); val != 3 {
		t.Errorf("Expected degradedProducts to be 3, got %f", val)
	}
}

// Fuzz test for SanitizeDomain.
func FuzzSanitizeDomain(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeDomain(orig)
		if sanitized == "" {
			t.Errorf("SanitizeDomain(%q) returned an empty string", orig)
		}
	})
}
