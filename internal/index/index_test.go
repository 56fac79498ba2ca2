package index

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "typsite-index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndLookup(t *testing.T) {
	db := testDB(t)

	row := OutputRow{Destination: "/p/_site/about/index.html", Source: "/p/src/about.typ", Checksum: "abc"}
	if err := db.Record(row); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := db.Lookup(row.Destination)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got == nil || got.Source != row.Source || got.Checksum != "abc" {
		t.Fatalf("Lookup = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestLookupMissing(t *testing.T) {
	db := testDB(t)
	got, err := db.Lookup("/nope")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil row, got %+v", got)
	}
}

func TestRecordReplacesOwner(t *testing.T) {
	db := testDB(t)
	dst := "/p/_site/about/index.html"
	_ = db.Record(OutputRow{Destination: dst, Source: "/p/src/about.typ", Checksum: "1"})
	_ = db.Record(OutputRow{Destination: dst, Source: "/p/src/about/index.typ", Checksum: "2"})

	got, _ := db.Lookup(dst)
	if got.Source != "/p/src/about/index.typ" || got.Checksum != "2" {
		t.Errorf("last writer should win, got %+v", got)
	}
	n, _ := db.Count()
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestBySource(t *testing.T) {
	db := testDB(t)
	_ = db.Record(OutputRow{Destination: "/p/_site/a.css", Source: "/p/src/a.css"})
	_ = db.Record(OutputRow{Destination: "/p/_site/b/index.html", Source: "/p/src/b.typ"})

	rows, err := db.BySource("/p/src/b.typ")
	if err != nil {
		t.Fatalf("BySource: %v", err)
	}
	if len(rows) != 1 || rows[0].Destination != "/p/_site/b/index.html" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestInMemory(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.Record(OutputRow{Destination: "x", Source: "y"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	n, _ := db.Count()
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
