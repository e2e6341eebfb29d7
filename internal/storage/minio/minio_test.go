package minio

import (
	"context"
	"errors"
	"testing"

	miniogo "github.com/minio/minio-go/v7"

	"courtclip/internal/services"
)

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestPublicURLUsesBaseURL(t *testing.T) {
	store, err := New(Config{Endpoint: "localhost:9000", Bucket: "clips", PublicBaseURL: "https://cdn.example.com/clips/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := store.PublicURL(context.Background(), "Locaciones/Club A/Court1/North/clip (1).mp4")
	if err != nil {
		t.Fatalf("PublicURL: %v", err)
	}
	want := "https://cdn.example.com/clips/Locaciones/Club%20A/Court1/North/clip%20%281%29.mp4"
	if got != want {
		t.Fatalf("PublicURL = %q, want %q", got, want)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		marker error
	}{
		{miniogo.ErrorResponse{Code: "NoSuchKey"}, services.ErrNotFound},
		{miniogo.ErrorResponse{Code: "AccessDenied"}, services.ErrConfiguration},
		{context.DeadlineExceeded, services.ErrTimeout},
		{errors.New("connection reset"), services.ErrTransientIO},
	}
	for _, tc := range cases {
		if err := classify("read", "k", tc.err); !errors.Is(err, tc.marker) {
			t.Fatalf("classify(%v) = %v, want marker %v", tc.err, err, tc.marker)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	if contentTypeFor("a/B.MP4") != "video/mp4" || contentTypeFor("x.json") != "application/json" {
		t.Fatal("unexpected content types")
	}
}
