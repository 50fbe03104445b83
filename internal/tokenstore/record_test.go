package tokenstore

import (
	"testing"
	"time"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestNewRecord(t *testing.T) {
	raw := []byte(`{"access_token":"acc","refresh_token":"ref","token_type":"bearer","expires_in":3600}`)

	rec, err := NewRecord(raw, "realm-1", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.AccessToken != "acc" || rec.RefreshToken != "ref" || rec.TokenType != "bearer" {
		t.Errorf("unexpected token fields: %+v", rec)
	}
	if rec.RealmID != "realm-1" {
		t.Errorf("realm id = %q, want realm-1", rec.RealmID)
	}
	if want := testNow.Add(time.Hour); !rec.ExpiresAt.Equal(want) {
		t.Errorf("expires at = %v, want %v", rec.ExpiresAt, want)
	}
	if !rec.CreatedAt.Equal(testNow) {
		t.Errorf("created at = %v, want %v", rec.CreatedAt, testNow)
	}
	if string(rec.Raw) != string(raw) {
		t.Errorf("raw not verbatim: %s", rec.Raw)
	}
}

func TestNewRecord_DefaultExpiry(t *testing.T) {
	rec, err := NewRecord([]byte(`{"access_token":"acc"}`), "", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := testNow.Add(time.Hour); !rec.ExpiresAt.Equal(want) {
		t.Errorf("expires at = %v, want default %v", rec.ExpiresAt, want)
	}
}

func TestNewRecord_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `garbage`},
		{name: "no access token", raw: `{"refresh_token":"ref"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRecord([]byte(tt.raw), "", testNow); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRecord_Stale(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "well in the future", expiresAt: testNow.Add(time.Hour), want: false},
		{name: "just outside margin", expiresAt: testNow.Add(61 * time.Second), want: false},
		{name: "exactly at margin", expiresAt: testNow.Add(60 * time.Second), want: true},
		{name: "within margin", expiresAt: testNow.Add(30 * time.Second), want: true},
		{name: "already expired", expiresAt: testNow.Add(-10 * time.Second), want: true},
		{name: "unknown expiry", expiresAt: time.Time{}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{ExpiresAt: tt.expiresAt}
			if got := rec.Stale(testNow, time.Minute); got != tt.want {
				t.Errorf("Stale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecord_RawFallbacks(t *testing.T) {
	rec := Record{
		Raw: []byte(`{"access_token":"raw-acc","refresh_token":"raw-ref","realmId":"raw-realm"}`),
	}

	if got := rec.AccessTokenValue(); got != "raw-acc" {
		t.Errorf("AccessTokenValue() = %q", got)
	}
	if got := rec.RefreshTokenValue(); got != "raw-ref" {
		t.Errorf("RefreshTokenValue() = %q", got)
	}
	if got := rec.RealmIDValue(); got != "raw-realm" {
		t.Errorf("RealmIDValue() = %q", got)
	}

	// Top-level fields win over the raw payload.
	rec.RefreshToken = "top-ref"
	rec.RealmID = "top-realm"
	if got := rec.RefreshTokenValue(); got != "top-ref" {
		t.Errorf("RefreshTokenValue() = %q, want top-ref", got)
	}
	if got := rec.RealmIDValue(); got != "top-realm" {
		t.Errorf("RealmIDValue() = %q, want top-realm", got)
	}
}

func TestRecord_RawFallbacksMalformed(t *testing.T) {
	rec := Record{Raw: []byte(`not json`)}
	if got := rec.RefreshTokenValue(); got != "" {
		t.Errorf("RefreshTokenValue() = %q, want empty", got)
	}
	if got := (Record{}).RefreshTokenValue(); got != "" {
		t.Errorf("RefreshTokenValue() on empty record = %q, want empty", got)
	}
}
