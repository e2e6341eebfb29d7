// Package storage defines the object storage contract the finishing pipeline,
// the recency publisher and the registries depend on.
//
// Keys are slash-separated paths relative to the bucket (or local root). The
// minio subpackage talks to S3-compatible storage; the local subpackage maps
// keys onto a directory and backs dry runs and tests.
package storage

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"
)

// Object describes one stored file.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Name returns the last path element of the key.
func (o Object) Name() string {
	return path.Base(o.Key)
}

// Store is the storage collaborator. Missing keys are reported with errors
// wrapping services.ErrNotFound; transport failures wrap
// services.ErrTransientIO so the retry policy can act on them.
type Store interface {
	// List returns the objects under prefix. Without recursive only direct
	// children are returned.
	List(ctx context.Context, prefix string, recursive bool) ([]Object, error)
	Download(ctx context.Context, key, localPath string) error
	Upload(ctx context.Context, localPath, key string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// PublicURL resolves a link clients can fetch the object from.
	PublicURL(ctx context.Context, key string) (string, error)
	ReadObject(ctx context.Context, key string) ([]byte, error)
	// WriteObject replaces the object wholesale.
	WriteObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Join builds a key from path elements, dropping empty ones.
func Join(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return path.Join(cleaned...)
}

// RewriteShareLink turns a Dropbox-style preview link into a direct download
// link. Other URLs are returned unchanged.
func RewriteShareLink(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	host := strings.ToLower(u.Host)
	if host != "www.dropbox.com" && host != "dropbox.com" {
		return link
	}
	u.Host = "dl.dropboxusercontent.com"
	q := u.Query()
	q.Del("dl")
	q.Set("raw", "1")
	u.RawQuery = q.Encode()
	return u.String()
}
