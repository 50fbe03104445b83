package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return store
}

func mustRecord(t *testing.T, raw, realmID string) Record {
	t.Helper()
	rec, err := NewRecord([]byte(raw), realmID, testNow)
	if err != nil {
		t.Fatalf("NewRecord error: %v", err)
	}
	return rec
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	rec := mustRecord(t, `{"access_token":"acc","refresh_token":"ref","token_type":"bearer","expires_in":3600}`, "realm-1")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest error: %v", err)
	}
	if got.AccessToken != rec.AccessToken || got.RefreshToken != rec.RefreshToken || got.TokenType != rec.TokenType {
		t.Errorf("loaded token fields differ: %+v", got)
	}
	if got.RealmID != "realm-1" {
		t.Errorf("realm id = %q, want realm-1", got.RealmID)
	}
	if !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Errorf("expires at = %v, want %v", got.ExpiresAt, rec.ExpiresAt)
	}
}

func TestFileStore_SaveSupersedes(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	first := mustRecord(t, `{"access_token":"old","refresh_token":"old-ref"}`, "realm-1")
	second := mustRecord(t, `{"access_token":"new","refresh_token":"new-ref"}`, "realm-1")

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest error: %v", err)
	}
	if got.AccessToken != "new" {
		t.Errorf("access token = %q, want the superseding record", got.AccessToken)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := newFileStore(t)

	_, err := store.LoadLatest(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

func TestFileStore_LoadWithoutExpiryIsStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	// Legacy layout: payload plus realm id only, no stored expiry.
	payload := `{"access_token":"acc","refresh_token":"ref","_realm_id":"realm-1"}`
	if err := os.WriteFile(path, []byte(payload), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	got, err := store.LoadLatest(context.Background())
	if err != nil {
		t.Fatalf("LoadLatest error: %v", err)
	}
	if !got.ExpiresAt.IsZero() {
		t.Errorf("expires at = %v, want zero", got.ExpiresAt)
	}
	if !got.Stale(time.Now(), time.Minute) {
		t.Error("record without expiry must be stale")
	}
	if got.RealmID != "realm-1" {
		t.Errorf("realm id = %q, want realm-1", got.RealmID)
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	rec := mustRecord(t, `{"access_token":"acc","refresh_token":"ref"}`, "")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	info, err := os.Stat(store.filePath)
	if err != nil {
		t.Fatalf("Stat error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %04o, want 0600", perm)
	}
}
