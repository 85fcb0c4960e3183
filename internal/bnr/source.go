package bnr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultURL is the daily exchange-rate document published by the
	// National Bank of Romania.
	DefaultURL = "https://www.bnr.ro/nbrfxrates.xml"

	// BaseCurrency is the currency every published rate is quoted against.
	// It never appears in the document itself; FetchLatest synthesizes it
	// into the result at rate 1.0.
	BaseCurrency = "RON"

	defaultTimeout = 10 * time.Second
	userAgent      = "fxcache/1.0"
)

var (
	// ErrStatus marks a non-2xx response from the rate authority.
	ErrStatus = errors.New("unexpected http status")

	// ErrDecode marks a rate document that could not be parsed.
	ErrDecode = errors.New("malformed rates document")
)

// Snapshot is the full set of per-unit RON rates published for one calendar
// date (YYYY-MM-DD).
type Snapshot struct {
	Date  string
	Rates map[string]float64
}

// Client fetches and normalizes the daily rate document. It performs network
// I/O only; persistence belongs to the caller.
type Client struct {
	url    string
	client *http.Client
}

type Option func(*Client)

// WithURL overrides the document endpoint, mainly for tests.
func WithURL(u string) Option {
	return func(c *Client) { c.url = u }
}

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		url:    DefaultURL,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchLatest performs a single GET against the rate endpoint and returns
// the normalized snapshot. No retries: the caller decides the retry cadence.
func (c *Client) FetchLatest(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return decodeSnapshot(b)
}
