// Package minio implements storage.Store on S3-compatible object storage.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"courtclip/internal/services"
	"courtclip/internal/storage"
)

// Config holds connection settings.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	PresignExpiry time.Duration
}

// Store is a minio-backed storage.Store.
type Store struct {
	client        *miniogo.Client
	bucket        string
	publicBaseURL string
	presignExpiry time.Duration
}

var _ storage.Store = (*Store)(nil)

// New creates a client. No request is made until the first operation.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket required")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &Store{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		presignExpiry: expiry,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("check bucket", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return classify("create bucket", s.bucket, err)
		}
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string, recursive bool) ([]storage.Object, error) {
	p := strings.Trim(prefix, "/")
	if p != "" {
		p += "/"
	}
	var objects []storage.Object
	for info := range s.client.ListObjects(ctx, s.bucket, miniogo.ListObjectsOptions{Prefix: p, Recursive: recursive}) {
		if info.Err != nil {
			return nil, classify("list", prefix, info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		objects = append(objects, storage.Object{Key: info.Key, Size: info.Size, Modified: info.LastModified.UTC()})
	}
	return objects, nil
}

func (s *Store) Download(ctx context.Context, key, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, miniogo.GetObjectOptions{}); err != nil {
		return classify("download", key, err)
	}
	return nil
}

func (s *Store) Upload(ctx context.Context, localPath, key string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, miniogo.PutObjectOptions{ContentType: contentTypeFor(key)})
	if err != nil {
		return classify("upload", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return classify("delete", key, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, miniogo.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, classify("stat", key, err)
}

// PublicURL joins the configured public base URL with the key, or presigns a
// GET link when no base URL is configured.
func (s *Store) PublicURL(ctx context.Context, key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + escapeKey(key), nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiry, url.Values{})
	if err != nil {
		return "", classify("presign", key, err)
	}
	return storage.RewriteShareLink(u.String()), nil
}

func (s *Store) ReadObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, classify("read", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify("read", key, err)
	}
	return data, nil
}

func (s *Store) WriteObject(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classify("write", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	code := miniogo.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func classify(operation, key string, err error) error {
	var marker error
	switch code := miniogo.ToErrorResponse(err).Code; {
	case isNotFound(err):
		marker = services.ErrNotFound
	case code == "AccessDenied" || code == "InvalidAccessKeyId" || code == "SignatureDoesNotMatch":
		marker = services.ErrConfiguration
	case errors.Is(err, context.DeadlineExceeded):
		marker = services.ErrTimeout
	default:
		marker = services.ErrTransientIO
	}
	return services.Wrap(marker, "storage", operation, key, err)
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(key), ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
