package patents

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// MirrorBucket downloads compressed patent documents (*.xml.gz objects
// under prefix) from a GCS bucket into destDir, skipping objects whose
// file already exists locally. It returns how many files were fetched.
// Deployments keep the authoritative patent corpus in a bucket and
// mirror it down on startup.
func MirrorBucket(ctx context.Context, bucketName, prefix, destDir string, log zerolog.Logger) (int, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return 0, fmt.Errorf("mirror: create storage client: %w", err)
	}
	defer client.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("mirror: create %s: %w", destDir, err)
	}

	it := client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	fetched := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fetched, fmt.Errorf("mirror: list gs://%s/%s: %w", bucketName, prefix, err)
		}
		if !strings.HasSuffix(attrs.Name, ".xml.gz") {
			continue
		}

		dest := filepath.Join(destDir, path.Base(attrs.Name))
		if _, err := os.Stat(dest); err == nil {
			continue
		}

		if err := downloadObject(ctx, client, bucketName, attrs.Name, dest); err != nil {
			log.Warn().Err(err).Str("object", attrs.Name).Msg("Skipping patent object")
			continue
		}
		fetched++
		log.Info().Str("object", attrs.Name).Str("dest", dest).Msg("Mirrored patent file")
	}
	return fetched, nil
}

func downloadObject(ctx context.Context, client *storage.Client, bucket, object, dest string) error {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("download %s: %w", object, err)
	}
	return f.Close()
}
