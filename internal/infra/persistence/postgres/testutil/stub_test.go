package testutil

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func queryStrings(t *testing.T, db *sql.DB, query string) []string {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), query)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func TestStubConflictHandling(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()

	upsert := `INSERT INTO participant_backups(kind,payload) VALUES($1,$2) ON CONFLICT(kind) DO UPDATE SET payload=EXCLUDED.payload`
	for _, payload := range []string{"v1", "v2"} {
		if _, err := db.ExecContext(ctx, upsert, "producer", payload); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if diff := cmp.Diff([]string{"v2"}, queryStrings(t, db, "SELECT payload FROM participant_backups")); diff != "" {
		t.Fatalf("upsert mismatch (-want +got):\n%s", diff)
	}

	insert := `INSERT INTO snapshots(generation,payload) VALUES($1,$2) ON CONFLICT(generation) DO NOTHING`
	for _, payload := range []string{"first", "second"} {
		if _, err := db.ExecContext(ctx, insert, "g1", payload); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if diff := cmp.Diff([]string{"first"}, queryStrings(t, db, "SELECT payload FROM snapshots")); diff != "" {
		t.Fatalf("do nothing mismatch (-want +got):\n%s", diff)
	}
	if len(conn.Execs) != 4 {
		t.Fatalf("execs = %v", conn.Execs)
	}
}

func TestStubDeleteAndOrder(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	conn.Tables["snapshots"] = []map[string]any{
		{"generation": "b", "taken_at": base.Add(time.Hour)},
		{"generation": "c", "taken_at": base.Add(2 * time.Hour)},
		{"generation": "a", "taken_at": base},
	}
	if diff := cmp.Diff([]string{"c", "b"}, queryStrings(t, db, "SELECT generation FROM snapshots ORDER BY taken_at DESC LIMIT 2")); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	res, err := db.ExecContext(ctx, "DELETE FROM snapshots WHERE generation = $1", "b")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("rows affected = %d", n)
	}
	if diff := cmp.Diff([]string{"a", "c"}, queryStrings(t, db, "SELECT generation FROM snapshots ORDER BY taken_at")); diff != "" {
		t.Fatalf("after delete (-want +got):\n%s", diff)
	}
}

func TestStubInjectedFailures(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()

	conn.FailTables = map[string]bool{"snapshots": true}
	if _, err := db.QueryContext(ctx, "SELECT generation FROM snapshots"); err == nil {
		t.Fatalf("expected table failure")
	}
	conn.FailTables = nil

	rowsErr := errors.New("connection reset")
	conn.RowsErr = rowsErr
	rows, err := db.QueryContext(ctx, "SELECT generation FROM snapshots")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for rows.Next() {
		t.Fatalf("unexpected row")
	}
	if !errors.Is(rows.Err(), rowsErr) {
		t.Fatalf("rows err = %v", rows.Err())
	}
	_ = rows.Close()
	conn.RowsErr = nil

	if _, err := db.QueryContext(ctx, "UPDATE snapshots SET payload = 1"); err == nil {
		t.Fatalf("expected unsupported query error")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO snapshots(generation,payload) VALUES($1)", "g"); err == nil {
		t.Fatalf("expected argument mismatch")
	}

	conn.FailBegin = true
	if _, err := db.BeginTx(ctx, nil); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	conn.FailCommit = true
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected commit failure")
	}
	conn.FailCommit = false

	conn.FailExec = true
	if err := db.PingContext(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
}
