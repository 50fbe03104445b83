package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoToken is returned by LoadLatest when no record has been stored yet.
var ErrNoToken = errors.New("no token stored")

// Store reads and writes the current token record.
//
// Save must be atomic with respect to "latest wins": once it returns nil,
// LoadLatest returns that record (or a later one), never an older one.
type Store interface {
	// Save persists rec as the current record, superseding all prior ones.
	Save(ctx context.Context, rec Record) error

	// LoadLatest returns the current record, or ErrNoToken if none exists.
	LoadLatest(ctx context.Context) (Record, error)
}

// Record is the persisted token entity. Raw holds the verbatim token endpoint
// response for forward-compatibility with fields we do not model.
type Record struct {
	RealmID      string
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	Raw          json.RawMessage
	CreatedAt    time.Time
}

// tokenResponse models the fields of an OAuth token endpoint response that
// the record derives its columns from.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RealmID      string `json:"realmId"`
}

// defaultExpiresIn is assumed when the token endpoint omits expires_in.
const defaultExpiresIn = 3600

// NewRecord builds a Record from a verbatim token endpoint response body.
// ExpiresAt is derived as now + expires_in; it is never trusted from any
// other source.
func NewRecord(raw []byte, realmID string, now time.Time) (Record, error) {
	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Record{}, fmt.Errorf("parsing token response: %w", err)
	}
	if resp.AccessToken == "" {
		return Record{}, errors.New("token response has no access_token")
	}

	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	return Record{
		RealmID:      realmID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    now.Add(time.Duration(expiresIn) * time.Second).UTC(),
		Raw:          append(json.RawMessage(nil), raw...),
		CreatedAt:    now.UTC(),
	}, nil
}

// Stale reports whether the record must be refreshed before use. A record
// with an unknown expiry is always stale; otherwise it is stale once
// now + margin reaches ExpiresAt.
func (r Record) Stale(now time.Time, margin time.Duration) bool {
	if r.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(margin).Before(r.ExpiresAt)
}

// AccessTokenValue returns the access token, falling back to the raw payload.
func (r Record) AccessTokenValue() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.rawString("access_token")
}

// RefreshTokenValue returns the refresh token, falling back to the raw payload.
func (r Record) RefreshTokenValue() string {
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	return r.rawString("refresh_token")
}

// RealmIDValue returns the realm id, falling back to a realmId embedded in
// the raw payload.
func (r Record) RealmIDValue() string {
	if r.RealmID != "" {
		return r.RealmID
	}
	return r.rawString("realmId")
}

// rawString extracts a top-level string field from the raw payload.
// Returns "" on any parse failure or missing key.
func (r Record) rawString(key string) string {
	if len(r.Raw) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Raw, &fields); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		return ""
	}
	return s
}

// Metadata keys stored alongside the raw payload by the file and keyring
// backends. The leading underscore keeps them out of the token endpoint's
// own namespace.
const (
	payloadRealmKey     = "_realm_id"
	payloadExpiresAtKey = "_expires_at"
	payloadCreatedAtKey = "_created_at"
)

// encodePayload flattens the record into a single JSON object: the verbatim
// raw payload plus the underscore-prefixed metadata keys.
func encodePayload(rec Record) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(rec.Raw) > 0 {
		if err := json.Unmarshal(rec.Raw, &fields); err != nil {
			return nil, fmt.Errorf("parsing raw payload: %w", err)
		}
	}

	set := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields[key] = data
		return nil
	}
	if err := set(payloadRealmKey, rec.RealmID); err != nil {
		return nil, err
	}
	if !rec.ExpiresAt.IsZero() {
		if err := set(payloadExpiresAtKey, rec.ExpiresAt.Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	if !rec.CreatedAt.IsZero() {
		if err := set(payloadCreatedAtKey, rec.CreatedAt.Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}

	return json.Marshal(fields)
}

// decodePayload rebuilds a Record from a flattened payload. Metadata keys are
// stripped so Raw ends up equivalent to the original token response. A
// missing or unparseable expiry yields a zero ExpiresAt, which Stale treats
// as already expired.
func decodePayload(data []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Record{}, fmt.Errorf("parsing token payload: %w", err)
	}

	str := func(key string) string {
		var s string
		if err := json.Unmarshal(fields[key], &s); err != nil {
			return ""
		}
		return s
	}
	parseTime := func(key string) time.Time {
		t, err := time.Parse(time.RFC3339, str(key))
		if err != nil {
			return time.Time{}
		}
		return t
	}

	rec := Record{
		RealmID:   str(payloadRealmKey),
		ExpiresAt: parseTime(payloadExpiresAtKey),
		CreatedAt: parseTime(payloadCreatedAtKey),
	}

	delete(fields, payloadRealmKey)
	delete(fields, payloadExpiresAtKey)
	delete(fields, payloadCreatedAtKey)

	raw, err := json.Marshal(fields)
	if err != nil {
		return Record{}, err
	}
	rec.Raw = raw
	rec.AccessToken = rec.rawString("access_token")
	rec.RefreshToken = rec.rawString("refresh_token")
	rec.TokenType = rec.rawString("token_type")

	return rec, nil
}
