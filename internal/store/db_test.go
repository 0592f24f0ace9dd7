package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/setevik/procwarden/internal/record"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insert(t *testing.T, db *DB, session string, ts time.Time, level record.Level, process, msg string) *record.Record {
	t.Helper()
	rec := record.New(session, ts, level, process, msg)
	if err := db.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

func TestInsertAndQuery(t *testing.T) {
	db := testDB(t)

	rec := insert(t, db, "s1", time.Now(), record.LevelError, "btcd", "btcd: unable to bind")

	recs, err := db.Query(QueryFilter{
		Since: time.Now().Add(-1 * time.Hour),
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	got := recs[0]
	if got.ID != rec.ID {
		t.Errorf("ID = %q, want %q", got.ID, rec.ID)
	}
	if got.SessionID != "s1" {
		t.Errorf("SessionID = %q", got.SessionID)
	}
	if got.Level != record.LevelError {
		t.Errorf("Level = %q", got.Level)
	}
	if got.Process != "btcd" {
		t.Errorf("Process = %q", got.Process)
	}
	if got.Message != "btcd: unable to bind" {
		t.Errorf("Message = %q", got.Message)
	}
	if !got.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, rec.Timestamp)
	}
}

func TestQueryFilters(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	insert(t, db, "s1", now, record.LevelInfo, "lnd", "lnd Already Running")
	insert(t, db, "s1", now, record.LevelError, "btcd", "btcd: oops")
	insert(t, db, "s2", now, record.LevelError, "btcd", "btcd: again")
	insert(t, db, "s2", now, record.LevelError, "", "Main Process: boom")

	tests := []struct {
		name   string
		filter QueryFilter
		want   int
	}{
		{"level", QueryFilter{Level: "error"}, 3},
		{"process", QueryFilter{Process: "btcd"}, 2},
		{"session", QueryFilter{SessionID: "s1"}, 2},
		{"limit", QueryFilter{Limit: 2}, 2},
		{"future", QueryFilter{Since: now.Add(time.Hour)}, 0},
		{"until", QueryFilter{Until: now.Add(-time.Hour)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := db.Query(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(recs) != tt.want {
				t.Errorf("got %d records, want %d", len(recs), tt.want)
			}
		})
	}
}

func TestQueryNewestFirst(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	insert(t, db, "s", base, record.LevelInfo, "lnd", "first")
	insert(t, db, "s", base.Add(500*time.Millisecond), record.LevelInfo, "lnd", "second")
	insert(t, db, "s", base.Add(time.Second), record.LevelInfo, "lnd", "third")

	recs, err := db.Query(QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Message != "third" || recs[1].Message != "second" || recs[2].Message != "first" {
		t.Errorf("order = %q, %q, %q", recs[0].Message, recs[1].Message, recs[2].Message)
	}
}

func TestPurge(t *testing.T) {
	db := testDB(t)

	insert(t, db, "old", time.Now().Add(-100*24*time.Hour), record.LevelInfo, "lnd", "old")
	insert(t, db, "new", time.Now(), record.LevelInfo, "lnd", "new")

	purged, err := db.Purge(90 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged %d records, want 1", purged)
	}

	count, err := db.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("after purge: %d records remain, want 1", count)
	}
}

func TestCount(t *testing.T) {
	db := testDB(t)

	count, err := db.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("empty db count = %d, want 0", count)
	}

	for i := 0; i < 5; i++ {
		insert(t, db, "s", time.Now(), record.LevelInfo, "lnd", "x")
	}

	count, err = db.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestSummarize(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	insert(t, db, "s", now.Add(-48*time.Hour), record.LevelError, "btcd", "too old")
	insert(t, db, "s", now, record.LevelInfo, "lnd", "lnd Already Running")
	insert(t, db, "s", now, record.LevelError, "btcd", "btcd: a")
	insert(t, db, "s", now.Add(time.Second), record.LevelError, "btcd", "btcd: b")
	insert(t, db, "s", now, record.LevelError, "", "Main Process: boom")

	sums, err := db.Summarize(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("got %d summaries, want 3: %+v", len(sums), sums)
	}

	// Ordered by process name, supervisor-level first.
	if sums[0].Process != "" || sums[0].Errors != 1 {
		t.Errorf("supervisor summary = %+v", sums[0])
	}
	if sums[1].Process != "btcd" || sums[1].Errors != 2 || sums[1].Infos != 0 {
		t.Errorf("btcd summary = %+v", sums[1])
	}
	if !sums[1].LastSeen.Equal(now.Add(time.Second).UTC().Truncate(time.Nanosecond)) {
		t.Errorf("btcd LastSeen = %v, want %v", sums[1].LastSeen, now.Add(time.Second))
	}
	if sums[2].Process != "lnd" || sums[2].Infos != 1 {
		t.Errorf("lnd summary = %+v", sums[2])
	}
}
