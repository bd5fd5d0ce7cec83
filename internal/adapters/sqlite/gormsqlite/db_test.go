package gormsqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildDSNIncludesPerConnectionPragmas(t *testing.T) {
	reader := buildDSN("./db.sqlite", true)
	writer := buildDSN("./db.sqlite", false)

	checks := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=trusted_schema(OFF)",
	}
	for _, c := range checks {
		if !strings.Contains(reader, c) {
			t.Fatalf("reader dsn missing %q: %s", c, reader)
		}
		if !strings.Contains(writer, c) {
			t.Fatalf("writer dsn missing %q: %s", c, writer)
		}
	}

	if !strings.Contains(reader, "_pragma=query_only(1)") {
		t.Fatalf("reader dsn missing query_only(1): %s", reader)
	}
	if !strings.Contains(writer, "_pragma=query_only(0)") {
		t.Fatalf("writer dsn missing query_only(0): %s", writer)
	}
}

func TestBuildDSNWriterLocksImmediately(t *testing.T) {
	if !strings.Contains(buildDSN("a.sqlite", false), "_txlock=immediate") {
		t.Fatal("writer dsn must request immediate transactions")
	}
	if strings.Contains(buildDSN("a.sqlite", true), "_txlock") {
		t.Fatal("reader dsn must not take write locks")
	}
	if dsn := buildDSN("a.sqlite?cache=shared", true); !strings.Contains(dsn, "cache=shared&_pragma=") {
		t.Fatalf("existing query must be extended, got %s", dsn)
	}
}

func TestOpenCreatesUsablePools(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "pools.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Exec("CREATE TABLE t (v INTEGER)").Error
	}); err != nil {
		t.Fatalf("write tx: %v", err)
	}
	err = db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Exec("INSERT INTO t (v) VALUES (1)").Error
	})
	if err == nil {
		t.Fatal("reader pool must reject writes")
	}
}
