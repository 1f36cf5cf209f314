// Package patents reads the store of gzip-compressed patent XML
// documents and pulls raw table fragments out of them.
package patents

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// Document is a handle on one compressed patent file in the store.
type Document struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Fragment is the raw markup of one table extracted from a document,
// together with its position within that document.
type Fragment struct {
	DocName string
	Index   int // 1-based position within the document
	Total   int // tables scheduled from the same document
	XML     string
}

// ID returns the stable fragment identifier used by the progress map.
func (f Fragment) ID() string {
	return fmt.Sprintf("%s#%d", f.DocName, f.Index)
}

// Locator finds patent documents whose full decompressed text contains
// a query substring.
type Locator struct {
	dir string
	log zerolog.Logger
}

// NewLocator creates a locator over the given store directory.
func NewLocator(dir string, log zerolog.Logger) *Locator {
	return &Locator{dir: dir, log: log}
}

// Find scans *.xml.gz files at depth 1 of the store directory in
// lexicographic order and returns up to limit documents whose
// lower-cased text contains the lower-cased query. Documents that fail
// to read or decompress are skipped. An empty result is not an error.
func (l *Locator) Find(ctx context.Context, query string, limit int) ([]Document, error) {
	paths, err := filepath.Glob(filepath.Join(l.dir, "*.xml.gz"))
	if err != nil {
		return nil, fmt.Errorf("locator: scan %s: %w", l.dir, err)
	}
	sort.Strings(paths)

	needle := strings.ToLower(query)
	var matches []Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := readGzipped(path)
		if err != nil {
			l.log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable patent file")
			continue
		}
		if !strings.Contains(strings.ToLower(text), needle) {
			continue
		}
		matches = append(matches, Document{Path: path, Name: filepath.Base(path)})
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// ReadDocument returns the full decompressed text of a document.
func (l *Locator) ReadDocument(doc Document) (string, error) {
	return readGzipped(doc.Path)
}

func readGzipped(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("gunzip %s: %w", path, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
