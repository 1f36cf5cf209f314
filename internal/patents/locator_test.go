package patents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

func writeGzipped(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocator_Find(t *testing.T) {
	dir := t.TempDir()
	writeGzipped(t, dir, "b-patent.xml.gz", "<patent>Polyethylene separator</patent>")
	writeGzipped(t, dir, "a-patent.xml.gz", "<patent>POLYETHYLENE membrane</patent>")
	writeGzipped(t, dir, "c-patent.xml.gz", "<patent>nothing relevant</patent>")

	loc := NewLocator(dir, zerolog.Nop())
	docs, err := loc.Find(context.Background(), "polyethylene", 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(docs))
	}
	// Lexicographic path order.
	if docs[0].Name != "a-patent.xml.gz" || docs[1].Name != "b-patent.xml.gz" {
		t.Errorf("unexpected order: %v", docs)
	}
}

func TestLocator_FindLimit(t *testing.T) {
	dir := t.TempDir()
	writeGzipped(t, dir, "a.xml.gz", "aso sequence data")
	writeGzipped(t, dir, "b.xml.gz", "aso sequence data")
	writeGzipped(t, dir, "c.xml.gz", "aso sequence data")

	loc := NewLocator(dir, zerolog.Nop())
	docs, err := loc.Find(context.Background(), "aso", 2)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected limit of 2, got %d", len(docs))
	}
}

func TestLocator_FindNoMatches(t *testing.T) {
	dir := t.TempDir()
	writeGzipped(t, dir, "a.xml.gz", "unrelated content")

	loc := NewLocator(dir, zerolog.Nop())
	docs, err := loc.Find(context.Background(), "polyimide", 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no matches, got %d", len(docs))
	}
}

func TestLocator_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	// Not actually gzipped.
	if err := os.WriteFile(filepath.Join(dir, "a.xml.gz"), []byte("plain text with query"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeGzipped(t, dir, "b.xml.gz", "text with query")

	loc := NewLocator(dir, zerolog.Nop())
	docs, err := loc.Find(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Name != "b.xml.gz" {
		t.Errorf("expected only the valid file, got %v", docs)
	}
}

func TestLocator_ReadDocument(t *testing.T) {
	dir := t.TempDir()
	writeGzipped(t, dir, "a.xml.gz", "<patent>content</patent>")

	loc := NewLocator(dir, zerolog.Nop())
	docs, err := loc.Find(context.Background(), "content", 0)
	if err != nil || len(docs) != 1 {
		t.Fatalf("Find: %v, %d docs", err, len(docs))
	}
	text, err := loc.ReadDocument(docs[0])
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	if text != "<patent>content</patent>" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestFragmentID(t *testing.T) {
	f := Fragment{DocName: "us1234.xml.gz", Index: 2, Total: 5}
	if got := f.ID(); got != "us1234.xml.gz#2" {
		t.Errorf("ID() = %q", got)
	}
}
