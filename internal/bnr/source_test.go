package bnr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchLatest(t *testing.T) {
	var gotUserAgent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sampleDocument))
	}))
	defer ts.Close()

	c := NewClient(WithURL(ts.URL))
	snap, err := c.FetchLatest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.Date != "2024-01-15" {
		t.Errorf("unexpected date: %q", snap.Date)
	}
	if snap.Rates[BaseCurrency] != 1.0 {
		t.Errorf("base currency missing from snapshot")
	}
	if gotUserAgent == "" {
		t.Errorf("expected an identifying User-Agent header")
	}
}

func TestFetchLatest_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(WithURL(ts.URL))
	if _, err := c.FetchLatest(context.Background()); !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
}

func TestFetchLatest_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance page</html>"))
	}))
	defer ts.Close()

	c := NewClient(WithURL(ts.URL))
	if _, err := c.FetchLatest(context.Background()); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestFetchLatest_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	c := NewClient(
		WithURL(ts.URL),
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	if _, err := c.FetchLatest(context.Background()); err == nil {
		t.Fatalf("expected a timeout error")
	}
}
