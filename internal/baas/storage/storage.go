// Package storage implements blob.Store on top of Supabase Storage.
package storage

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/and161185/student-portal/internal/baas"
	"github.com/and161185/student-portal/internal/blob"
)

var _ blob.Store = (*Bucket)(nil)

// Bucket is a single storage bucket.
type Bucket struct {
	c    *baas.Client
	name string
}

// New returns a store writing to the client's configured bucket.
func New(c *baas.Client) *Bucket {
	return &Bucket{c: c, name: c.Bucket()}
}

// Upload POSTs data to /storage/v1/object/<bucket>/<key>.
func (b *Bucket) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("x-upsert", "false")
	_, err := b.c.Do(ctx, baas.Request{
		Method: http.MethodPost,
		Path:   "/storage/v1/object/" + b.name + "/" + escapeKey(key),
		Header: h,
		Body:   data,
	})
	return err
}

// PublicURL returns <url>/storage/v1/object/public/<bucket>/<key>.
func (b *Bucket) PublicURL(key string) string {
	return b.c.BaseURL() + "/storage/v1/object/public/" + b.name + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
