package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// maxObjectBytes bounds what ReadObject loads into memory.
const maxObjectBytes = 64 << 20

// ErrInvalidURI is returned for anything that is not gs://bucket/object.
var ErrInvalidURI = errors.New("invalid gcs uri")

// ParseGCSURI splits gs://bucket/object into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, object, nil
}

// ObjectURI formats a gs:// URI.
func ObjectURI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// ReadObject downloads the object behind a gs:// URI together with its
// stored content type.
func ReadObject(ctx context.Context, client *storage.Client, uri string) ([]byte, string, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, "", err
	}
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", uri, err)
	}
	defer reader.Close()

	if reader.Attrs.Size > maxObjectBytes {
		return nil, "", fmt.Errorf("object %s is %d bytes, limit is %d", uri, reader.Attrs.Size, maxObjectBytes)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", uri, err)
	}
	return data, reader.Attrs.ContentType, nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not an error, so retried runs stay idempotent.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	logCtx := slog.With("object", objectName, "bytes", len(content))
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if alreadyExists(err) {
			logCtx.Info("SKIPPING: Object already exists.")
			return nil
		}
		logCtx.Error("Failed to copy content to GCS object.", "error", err)
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			logCtx.Info("SKIPPING: Object already exists.")
			return nil
		}
		logCtx.Error("Failed to close GCS writer.", "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
