package intuit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/receiptdeck/qbo-backend/internal/tokenstore"
)

const (
	// staleMargin is the safety window before actual expiry within which a
	// token is treated as already expired, guarding against races with the
	// upstream call that will use it.
	staleMargin = 60 * time.Second

	// exchangeTimeout bounds a single token endpoint exchange.
	exchangeTimeout = 15 * time.Second
)

var (
	// ErrNotConfigured indicates the OAuth client id or redirect URI is missing.
	ErrNotConfigured = errors.New("client id and redirect uri not configured")

	// ErrNoRefreshToken indicates the stored record carries no refresh token;
	// the user must re-authorize.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// ExchangeError is a non-success response from the token endpoint.
type ExchangeError struct {
	Status int
	Body   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: status %d: %s", e.Status, e.Body)
}

// Credentials holds the OAuth client configuration for the QuickBooks app.
type Credentials struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	DefaultRealmID string
}

// Lifecycle is the sole writer of the stored token record. It performs the
// initial authorization-code exchange and refreshes the record on demand when
// it goes stale.
type Lifecycle struct {
	creds    Credentials
	store    tokenstore.Store
	endpoint oauth2.Endpoint
	client   *http.Client
	now      func() time.Time

	// refresh collapses concurrent refresh exchanges into one flight per realm.
	refresh singleflight.Group
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithEndpoint overrides the OAuth2 endpoints (used by tests).
func WithEndpoint(endpoint oauth2.Endpoint) LifecycleOption {
	return func(l *Lifecycle) {
		l.endpoint = endpoint
	}
}

// WithHTTPClient overrides the HTTP client used for token exchanges.
func WithHTTPClient(client *http.Client) LifecycleOption {
	return func(l *Lifecycle) {
		l.client = client
	}
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		l.now = now
	}
}

// NewLifecycle creates a Lifecycle writing through the given store.
// No I/O is performed until the first exchange or Token call.
func NewLifecycle(creds Credentials, store tokenstore.Store, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		creds:    creds,
		store:    store,
		endpoint: Endpoint,
		client:   &http.Client{Timeout: exchangeTimeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AuthCodeURL returns the upstream authorization URL for the connect
// redirect. Returns ErrNotConfigured if the client id or redirect URI is
// unset.
func (l *Lifecycle) AuthCodeURL() (string, error) {
	if l.creds.ClientID == "" || l.creds.RedirectURI == "" {
		return "", ErrNotConfigured
	}

	cfg := &oauth2.Config{
		ClientID:    l.creds.ClientID,
		RedirectURL: l.creds.RedirectURI,
		Scopes:      Scopes,
		Endpoint:    l.endpoint,
	}
	return cfg.AuthCodeURL(AuthState), nil
}

// Exchange performs the authorization-code exchange for the callback route
// and persists the resulting record. The realm id supplied by the callback
// wins over the configured default.
func (l *Lifecycle) Exchange(ctx context.Context, code, realmID string) (tokenstore.Record, error) {
	if code == "" {
		return tokenstore.Record{}, errors.New("missing authorization code")
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {l.creds.RedirectURI},
	}
	raw, err := l.postToken(ctx, form)
	if err != nil {
		return tokenstore.Record{}, err
	}

	realm := realmID
	if realm == "" {
		realm = l.creds.DefaultRealmID
	}

	rec, err := l.persist(ctx, raw, realm)
	if err != nil {
		return tokenstore.Record{}, err
	}
	slog.InfoContext(ctx, "authorization code exchange completed", "realm_id", realm)
	return rec, nil
}

// Token returns a valid token record, refreshing it first if stale. Callers
// receive an error when no record exists, when no refresh token is available
// or when the refresh exchange fails; they may retry later or initiate the
// authorization-code flow.
func (l *Lifecycle) Token(ctx context.Context) (tokenstore.Record, error) {
	rec, err := l.store.LoadLatest(ctx)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNoToken) {
			slog.DebugContext(ctx, "no tokens available")
			return tokenstore.Record{}, err
		}
		slog.ErrorContext(ctx, "failed to load token record", "error", err)
		return tokenstore.Record{}, fmt.Errorf("loading token record: %w", err)
	}

	if !rec.Stale(l.now(), staleMargin) {
		return rec, nil
	}

	return l.refreshFlight(ctx, rec, false)
}

// ForceRefresh refreshes the stored record regardless of its expiry. Used
// when the upstream rejects a locally fresh token (e.g. revoked).
func (l *Lifecycle) ForceRefresh(ctx context.Context) (tokenstore.Record, error) {
	rec, err := l.store.LoadLatest(ctx)
	if err != nil {
		return tokenstore.Record{}, err
	}
	return l.refreshFlight(ctx, rec, true)
}

// refreshFlight serializes refresh exchanges per realm. Callers that pile up
// behind an in-flight refresh all receive its result.
func (l *Lifecycle) refreshFlight(ctx context.Context, prev tokenstore.Record, force bool) (tokenstore.Record, error) {
	key := prev.RealmIDValue()
	if key == "" {
		key = l.creds.DefaultRealmID
	}

	v, err, _ := l.refresh.Do(key, func() (any, error) {
		// Another flight may have refreshed while we waited for the lock.
		cur, loadErr := l.store.LoadLatest(ctx)
		if loadErr == nil {
			if !force && !cur.Stale(l.now(), staleMargin) {
				return cur, nil
			}
			if force && cur.CreatedAt.After(prev.CreatedAt) {
				return cur, nil
			}
			prev = cur
		}
		return l.refreshOnce(ctx, prev)
	})
	if err != nil {
		return tokenstore.Record{}, err
	}
	return v.(tokenstore.Record), nil
}

// refreshOnce performs a single refresh-token exchange and persists the
// result. The stored record is left untouched on any failure.
func (l *Lifecycle) refreshOnce(ctx context.Context, prev tokenstore.Record) (tokenstore.Record, error) {
	refreshToken := prev.RefreshTokenValue()
	if refreshToken == "" {
		slog.WarnContext(ctx, "no refresh token available, re-authorization required")
		return tokenstore.Record{}, ErrNoRefreshToken
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	raw, err := l.postToken(ctx, form)
	if err != nil {
		return tokenstore.Record{}, err
	}

	// Realm fallback chain: previous record, realmId embedded in the
	// exchange response, configured default.
	realm := prev.RealmIDValue()
	if realm == "" {
		realm = (tokenstore.Record{Raw: raw}).RealmIDValue()
	}
	if realm == "" {
		realm = l.creds.DefaultRealmID
	}

	rec, err := l.persist(ctx, raw, realm)
	if err != nil {
		return tokenstore.Record{}, err
	}
	slog.InfoContext(ctx, "refreshed tokens", "realm_id", realm)
	return rec, nil
}

// persist writes the record and re-loads it, so the returned value reflects
// exactly what is now durable rather than an in-memory copy.
func (l *Lifecycle) persist(ctx context.Context, raw []byte, realmID string) (tokenstore.Record, error) {
	rec, err := tokenstore.NewRecord(raw, realmID, l.now())
	if err != nil {
		return tokenstore.Record{}, err
	}
	if err := l.store.Save(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to save token record", "error", err)
		return tokenstore.Record{}, fmt.Errorf("saving token record: %w", err)
	}
	return l.store.LoadLatest(ctx)
}

// postToken issues one authenticated, form-encoded exchange against the token
// endpoint. Network and non-success failures are logged and returned, never
// propagated as a crash.
func (l *Lifecycle) postToken(ctx context.Context, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(l.creds.ClientID, l.creds.ClientSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "token endpoint request failed", "error", err)
		return nil, fmt.Errorf("token endpoint request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.ErrorContext(ctx, "token exchange rejected", "status", resp.StatusCode, "body", string(body))
		return nil, &ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
