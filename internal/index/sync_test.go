package index

import (
	"path/filepath"
	"testing"

	"github.com/starford/typsite/internal/checksum"
	"github.com/starford/typsite/internal/logging"
	"github.com/starford/typsite/internal/storage"
)

func TestReconcile(t *testing.T) {
	db := testDB(t)
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	root := store.Root()

	intact := []byte("<p>intact</p>")
	if err := store.Write("intact.html", intact); err != nil {
		t.Fatal(err)
	}
	if err := store.Write("edited.html", []byte("<p>edited by hand</p>")); err != nil {
		t.Fatal(err)
	}

	rows := []OutputRow{
		{Destination: filepath.Join(root, "intact.html"), Source: "/p/src/intact.typ", Checksum: checksum.Sum(intact)},
		{Destination: filepath.Join(root, "edited.html"), Source: "/p/src/edited.typ", Checksum: checksum.Sum([]byte("<p>edited</p>"))},
		{Destination: filepath.Join(root, "gone.html"), Source: "/p/src/gone.typ", Checksum: "x"},
	}
	for _, r := range rows {
		if err := db.Record(r); err != nil {
			t.Fatal(err)
		}
	}

	touched, err := Reconcile(db, store, logging.Discard())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if touched != 2 {
		t.Errorf("touched = %d, want 2", touched)
	}

	if got, _ := db.Lookup(rows[2].Destination); got != nil {
		t.Error("row for deleted output should be gone")
	}
	if got, _ := db.Lookup(rows[1].Destination); got == nil || got.Checksum != "" {
		t.Errorf("edited row = %+v, want cleared checksum", got)
	}
	if got, _ := db.Lookup(rows[0].Destination); got == nil || got.Checksum != rows[0].Checksum {
		t.Errorf("intact row = %+v", got)
	}
}

func TestAllAndDelete(t *testing.T) {
	db := testDB(t)
	for _, d := range []string{"/o/b.html", "/o/a.html"} {
		if err := db.Record(OutputRow{Destination: d, Source: "/s"}); err != nil {
			t.Fatal(err)
		}
	}
	all, err := db.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Destination != "/o/a.html" {
		t.Fatalf("All = %+v", all)
	}
	if err := db.Delete("/o/a.html"); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.Count(); n != 1 {
		t.Errorf("count after delete = %d", n)
	}
}
