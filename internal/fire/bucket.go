package fire

import (
	"context"
	"fmt"
	"io"
	"net/url"

	cloudstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Bucket is the Cloud Storage bucket holding post images. It satisfies
// board.BlobStore.
type Bucket struct {
	bucket *cloudstorage.BucketHandle
	name   string
}

func NewBucket(bucket *cloudstorage.BucketHandle, name string) *Bucket {
	return &Bucket{bucket: bucket, name: name}
}

// Upload writes the bytes under key and returns the token-addressed
// download URL Firebase clients fetch images from.
func (b *Bucket) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	token := uuid.NewString()
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		b.name, url.PathEscape(key), token), nil
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	if err := b.bucket.Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
