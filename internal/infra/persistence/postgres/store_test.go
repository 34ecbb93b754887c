package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"txkit/internal/infra/persistence/postgres/testutil"
	"txkit/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn, *sql.DB) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn, db
}

func TestNewStoreAppliesDDL(t *testing.T) {
	_, conn, _ := openStub(t)
	var sawTable bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS DATOMS") {
			sawTable = true
		}
	}
	if !sawTable {
		t.Fatalf("expected datoms DDL, got execs: %v", conn.Execs)
	}
}

func TestTransactPersistsAndReloads(t *testing.T) {
	store, conn, db := openStub(t)
	ctx := context.Background()
	p := domain.NewTempID()
	res, err := store.Transact(ctx, domain.NewRequest(
		domain.Assert(p, "person/name", "Ada"),
		domain.Assert(p, "person/age", 36),
	))
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if got := len(conn.Tables["datoms"]); got != len(res.Datoms()) {
		t.Fatalf("expected %d persisted rows, got %d", len(res.Datoms()), got)
	}

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	reloaded, err := NewStore(ctx, "postgres://stub")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	id, _ := res.Resolve(p)
	if v, ok := reloaded.Db().Attribute(id, "person/age"); !ok || v != int64(36) {
		t.Fatalf("expected reloaded age, got %v", v)
	}
	if reloaded.Db().Basis() != res.Tx() {
		t.Fatalf("basis mismatch after reload")
	}
}

func TestTransactCommitFailureIsUnavailable(t *testing.T) {
	store, conn, _ := openStub(t)
	conn.FailCommit = true
	_, err := store.Transact(context.Background(), domain.NewRequest(domain.Assert(domain.NewTempID(), "a", "b")))
	if !domain.IsSubmissionError(err, domain.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if store.Db().Basis() != 0 {
		t.Fatalf("failed commit must not publish")
	}
	if len(conn.Tables["datoms"]) != 0 {
		t.Fatalf("failed commit must not leave rows, got %d", len(conn.Tables["datoms"]))
	}
}

func TestNewStorePingError(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestNewStoreLoadError(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailTables = map[string]bool{"datoms": true}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected load error")
	}
}
