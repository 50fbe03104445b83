package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPostgresStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresStore(db), mock, db
}

const (
	deleteQuery = `(?s)^DELETE\s+FROM\s+tokens$`
	insertQuery = `(?s)^INSERT\s+INTO\s+tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*$`
	selectQuery = `(?s)^SELECT\s+realm_id,.*FROM\s+tokens\s+ORDER\s+BY\s+id\s+DESC\s+LIMIT\s+1\s*$`
)

func TestPostgresStore_Save(t *testing.T) {
	store, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	rec := mustRecord(t, `{"access_token":"acc","refresh_token":"ref","token_type":"bearer","expires_in":3600}`, "realm-1")

	mock.ExpectBegin()
	mock.ExpectExec(deleteQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertQuery).
		WithArgs("realm-1", "acc", "ref", "bearer", sqlmock.AnyArg(), []byte(rec.Raw), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_SaveInsertFailureRollsBack(t *testing.T) {
	store, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	rec := mustRecord(t, `{"access_token":"acc","refresh_token":"ref"}`, "realm-1")

	mock.ExpectBegin()
	mock.ExpectExec(deleteQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertQuery).
		WithArgs("realm-1", "acc", "ref", "", sqlmock.AnyArg(), []byte(rec.Raw), sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	if err := store.Save(context.Background(), rec); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_LoadLatest(t *testing.T) {
	store, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	expires := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	created := expires.Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"realm_id", "access_token", "refresh_token", "token_type", "expires_at", "raw", "created_at"}).
		AddRow("realm-1", "acc", "ref", "bearer", expires, []byte(`{"access_token":"acc"}`), created)
	mock.ExpectQuery(selectQuery).WillReturnRows(rows)

	rec, err := store.LoadLatest(context.Background())
	if err != nil {
		t.Fatalf("LoadLatest error: %v", err)
	}
	if rec.AccessToken != "acc" || rec.RealmID != "realm-1" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.ExpiresAt.Equal(expires) {
		t.Errorf("expires at = %v, want %v", rec.ExpiresAt, expires)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_LoadLatestNullExpiry(t *testing.T) {
	store, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"realm_id", "access_token", "refresh_token", "token_type", "expires_at", "raw", "created_at"}).
		AddRow("realm-1", "acc", "ref", "bearer", nil, []byte(`{}`), time.Now())
	mock.ExpectQuery(selectQuery).WillReturnRows(rows)

	rec, err := store.LoadLatest(context.Background())
	if err != nil {
		t.Fatalf("LoadLatest error: %v", err)
	}
	if !rec.ExpiresAt.IsZero() {
		t.Errorf("expires at = %v, want zero", rec.ExpiresAt)
	}
}

func TestPostgresStore_LoadLatestEmpty(t *testing.T) {
	store, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQuery).WillReturnError(sql.ErrNoRows)

	_, err := store.LoadLatest(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}
