package db

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsOrdersAndSkips(t *testing.T) {
	files := fstest.MapFS{
		"migrations/010_later.sql": {Data: []byte("SELECT 10;")},
		"migrations/002_next.sql":  {Data: []byte("SELECT 2;")},
		"migrations/readme.sql":    {Data: []byte("-- no prefix")},
		"migrations/abc_bad.sql":   {Data: []byte("-- not numeric")},
	}

	got, err := LoadMigrations(files)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].Version != 2 || got[1].Version != 10 {
		t.Errorf("wrong order: %+v", got)
	}
}

func TestEmbeddedSchemaHasBookingGuards(t *testing.T) {
	migs, err := LoadMigrations(migrationFiles)
	if err != nil {
		t.Fatalf("load embedded: %v", err)
	}
	if len(migs) == 0 || migs[0].Version != 1 {
		t.Fatalf("expected 001 migration first, got %+v", migs)
	}
	sql := migs[0].SQL
	for _, want := range []string{"EXCLUDE USING gist", "btree_gist", "DEFERRABLE INITIALLY DEFERRED"} {
		if !strings.Contains(sql, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
