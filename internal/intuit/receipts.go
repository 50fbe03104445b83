package intuit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/receiptdeck/qbo-backend/internal/tokenstore"
)

const (
	// queryTimeout bounds a single resource API call.
	queryTimeout = 20 * time.Second

	// receiptLimit caps both the upstream query and the final result.
	receiptLimit = 50

	// receiptQuery requests the newest receipt records by creation time.
	receiptQuery = "select * from SalesReceipt order by MetaData.CreateTime desc maxresults 50"
)

var (
	// ErrNoTokens indicates no valid token could be obtained; the user must
	// connect (or re-connect) the QuickBooks account.
	ErrNoTokens = errors.New("no valid tokens")

	// ErrMissingCredentials indicates the stored record lacks an access token
	// or realm id.
	ErrMissingCredentials = errors.New("missing access token or realm id")

	// ErrNotFound indicates the requested receipt does not exist.
	ErrNotFound = errors.New("receipt not found")
)

// QueryError is a non-success response from the resource API.
type QueryError struct {
	Status int
	Body   string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: status %d: %s", e.Status, e.Body)
}

// TokenSource supplies valid token records to the receipts client.
// Implemented by Lifecycle.
type TokenSource interface {
	Token(ctx context.Context) (tokenstore.Record, error)
	ForceRefresh(ctx context.Context) (tokenstore.Record, error)
}

// Client is a read-only QuickBooks receipts client. Both fetch paths retry
// exactly once with a forced refresh when the upstream rejects a locally
// fresh token.
type Client struct {
	tokens         TokenSource
	baseURL        string
	defaultRealmID string
	client         *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithQueryHTTPClient overrides the HTTP client used for resource API calls.
func WithQueryHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a receipts client against the given resource API base URL.
func NewClient(tokens TokenSource, baseURL, defaultRealmID string, opts ...ClientOption) *Client {
	c := &Client{
		tokens:         tokens,
		baseURL:        strings.TrimRight(baseURL, "/"),
		defaultRealmID: defaultRealmID,
		client:         &http.Client{Timeout: queryTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListReceipts returns the 50 most recently created receipts, normalized and
// sorted by transaction date descending.
func (c *Client) ListReceipts(ctx context.Context) ([]Receipt, error) {
	rec, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, errors.Join(ErrNoTokens, err)
	}

	realm := c.realmFor(rec)
	access := rec.AccessTokenValue()
	if access == "" || realm == "" {
		return nil, ErrMissingCredentials
	}

	queryURL := fmt.Sprintf("%s/v3/company/%s/query?query=%s", c.baseURL, url.PathEscape(realm), url.QueryEscape(receiptQuery))
	body, err := c.getWithRetry(ctx, queryURL, access)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		QueryResponse struct {
			SalesReceipt []salesReceipt `json:"SalesReceipt"`
		} `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing query response: %w", err)
	}

	receipts := make([]Receipt, 0, len(parsed.QueryResponse.SalesReceipt))
	for i := range parsed.QueryResponse.SalesReceipt {
		receipts = append(receipts, normalizeReceipt(&parsed.QueryResponse.SalesReceipt[i]))
	}

	// Defensive re-sort and re-limit even though the query already asked for
	// this ordering and cap.
	sortReceiptsByDateDesc(receipts)
	if len(receipts) > receiptLimit {
		receipts = receipts[:receiptLimit]
	}
	return receipts, nil
}

// GetReceipt fetches and normalizes a single receipt by id.
func (c *Client) GetReceipt(ctx context.Context, id string) (Receipt, error) {
	rec, err := c.tokens.Token(ctx)
	if err != nil {
		return Receipt{}, errors.Join(ErrNoTokens, err)
	}

	realm := c.realmFor(rec)
	access := rec.AccessTokenValue()
	if access == "" || realm == "" {
		return Receipt{}, ErrMissingCredentials
	}

	fetchURL := fmt.Sprintf("%s/v3/company/%s/salesreceipt/%s", c.baseURL, url.PathEscape(realm), url.PathEscape(id))
	body, err := c.getWithRetry(ctx, fetchURL, access)
	if err != nil {
		var qerr *QueryError
		if errors.As(err, &qerr) && qerr.Status == http.StatusNotFound {
			return Receipt{}, ErrNotFound
		}
		return Receipt{}, err
	}

	var parsed struct {
		SalesReceipt *salesReceipt `json:"SalesReceipt"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Receipt{}, fmt.Errorf("parsing receipt response: %w", err)
	}
	if parsed.SalesReceipt == nil {
		return Receipt{}, ErrNotFound
	}
	return normalizeReceipt(parsed.SalesReceipt), nil
}

// realmFor resolves the realm id for a request: stored record first, then the
// configured default.
func (c *Client) realmFor(rec tokenstore.Record) string {
	if realm := rec.RealmIDValue(); realm != "" {
		return realm
	}
	return c.defaultRealmID
}

// getWithRetry issues a bearer-authenticated GET, forcing one token refresh
// and retrying once if the upstream answers 401 (token revoked despite local
// freshness).
func (c *Client) getWithRetry(ctx context.Context, rawURL, accessToken string) ([]byte, error) {
	status, body, err := c.get(ctx, rawURL, accessToken)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		slog.WarnContext(ctx, "upstream rejected token, forcing refresh", "url", rawURL)
		rec, refreshErr := c.tokens.ForceRefresh(ctx)
		if refreshErr != nil {
			return nil, &QueryError{Status: status, Body: string(body)}
		}
		status, body, err = c.get(ctx, rawURL, rec.AccessTokenValue())
		if err != nil {
			return nil, err
		}
	}

	if status != http.StatusOK {
		slog.ErrorContext(ctx, "upstream query failed", "status", status, "body", string(body))
		return nil, &QueryError{Status: status, Body: string(body)}
	}
	return body, nil
}

// get issues one bearer-authenticated GET and drains the response.
func (c *Client) get(ctx context.Context, rawURL, accessToken string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("resource API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading resource API response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// sortReceiptsByDateDesc orders receipts newest-first by transaction date.
// Dates are ISO-8601 strings, so lexicographic comparison is chronological.
func sortReceiptsByDateDesc(receipts []Receipt) {
	slices.SortStableFunc(receipts, func(a, b Receipt) int {
		return strings.Compare(b.TxnDate, a.TxnDate)
	})
}
