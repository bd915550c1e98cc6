// Package google reads observed bank balances and billing totals from a
// Google Sheets spreadsheet. It implements store.ObservationReader.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"saldo/internal/core"
	"saldo/internal/store"
)

// DefaultCacheTTL bounds how long a sheet read is reused.
const DefaultCacheTTL = 2 * time.Minute

// Ensure interface conformance
var _ store.ObservationReader = (*Client)(nil)

// Options selects the spreadsheet, its tabs and the credentials. Service
// account credentials win over OAuth ones when both are set.
type Options struct {
	SpreadsheetID    string
	BankSheetName    string
	BillingSheetName string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string

	CacheTTL time.Duration
}

// valueSource returns the raw cell matrix of an A1 range.
type valueSource interface {
	Values(ctx context.Context, spreadsheetID, a1Range string) ([][]any, error)
}

type sheetsValues struct {
	svc *gsheet.Service
}

func (s sheetsValues) Values(ctx context.Context, spreadsheetID, a1Range string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, a1Range).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

type cachedSheet struct {
	values    [][]any
	expiresAt time.Time
}

type Client struct {
	src           valueSource
	spreadsheetID string
	bankSheet     string
	billingSheet  string

	mu       sync.Mutex
	cache    map[string]cachedSheet
	cacheTTL time.Duration
	now      func() time.Time
}

// New connects to the Sheets API with the credentials in opts.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(sheetsValues{svc: svc}, opts), nil
}

func newClient(src valueSource, opts Options) *Client {
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &Client{
		src:           src,
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		bankSheet:     strings.TrimSpace(opts.BankSheetName),
		billingSheet:  strings.TrimSpace(opts.BillingSheetName),
		cache:         make(map[string]cachedSheet),
		cacheTTL:      ttl,
		now:           time.Now,
	}
}

// newSheetsService authenticates with a service account when one is
// configured, otherwise with a stored OAuth user token.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	saJSON, err := readSecret(opts.ServiceAccountJSON, opts.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if len(saJSON) > 0 {
		slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(saJSON))
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON(saJSON),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	}

	clientJSON, err := readSecret(opts.OAuthClientJSON, opts.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if len(clientJSON) == 0 {
		return nil, errors.New("missing credentials (set a service account or an OAuth client and token)")
	}
	tokenJSON, err := readSecret(opts.OAuthTokenJSON, opts.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if len(tokenJSON) == 0 {
		return nil, errors.New("missing OAuth token (run oauth-init first)")
	}

	cfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with OAuth token")
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return gsheet.NewService(ctx, goption.WithHTTPClient(cfg.Client(base, &tok)))
}

// readSecret prefers the inline value over the file.
func readSecret(inline, file string) ([]byte, error) {
	if v := strings.TrimSpace(inline); v != "" {
		return []byte(v), nil
	}
	if f := strings.TrimSpace(file); f != "" {
		return os.ReadFile(f)
	}
	return nil, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// FetchObservedBalances reads the bank sheet and keeps the rows dated in rng.
func (c *Client) FetchObservedBalances(ctx context.Context, rng core.DateRange) ([]core.ObservedBalanceSnapshot, error) {
	values, err := c.readSheet(ctx, c.bankSheet)
	if err != nil {
		return nil, err
	}
	snaps, skipped, err := parseBankSnapshots(values)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", c.bankSheet, err)
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped unreadable bank rows", "sheet", c.bankSheet, "rows", skipped)
	}
	out := snaps[:0]
	for _, s := range snaps {
		if rng.Contains(s.Date) {
			out = append(out, s)
		}
	}
	return out, nil
}

// FetchBillingTotals reads the billing sheet and keeps the rows dated in rng.
func (c *Client) FetchBillingTotals(ctx context.Context, rng core.DateRange) ([]core.BillingTotal, error) {
	values, err := c.readSheet(ctx, c.billingSheet)
	if err != nil {
		return nil, err
	}
	totals, skipped, err := parseBillingTotals(values)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", c.billingSheet, err)
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped unreadable billing rows", "sheet", c.billingSheet, "rows", skipped)
	}
	out := totals[:0]
	for _, b := range totals {
		if rng.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return out, nil
}

// InvalidateCache forces the next read of every sheet to hit the API.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
}

func (c *Client) readSheet(ctx context.Context, sheet string) ([][]any, error) {
	if c.src == nil {
		return nil, errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	if cached, ok := c.cache[sheet]; ok && c.now().Before(cached.expiresAt) {
		c.mu.Unlock()
		return cached.values, nil
	}
	c.mu.Unlock()

	a1 := fmt.Sprintf("%s!A:Z", sheet)
	values, err := c.src.Values(ctx, c.spreadsheetID, a1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a1, err)
	}

	c.mu.Lock()
	c.cache[sheet] = cachedSheet{values: values, expiresAt: c.now().Add(c.cacheTTL)}
	c.mu.Unlock()
	return values, nil
}
