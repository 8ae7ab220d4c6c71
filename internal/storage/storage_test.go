package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestMemoryStorage_UploadAndHead(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		content     string
		contentType string
		metadata    map[string]string
		wantErr     error
	}{
		{
			name:        "upload with metadata",
			key:         "avatars/originals/abc.png",
			content:     "png bytes",
			contentType: "image/png",
			metadata:    map[string]string{"Instance-Id": "i-1"},
		},
		{
			name:        "upload without metadata",
			key:         "recordings/originals/r1.mp4",
			content:     "",
			contentType: "video/mp4",
		},
		{
			name:        "empty key",
			key:         "",
			content:     "x",
			contentType: "text/plain",
			wantErr:     ErrInvalidKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStorage()
			ctx := context.Background()

			err := s.Upload(ctx, tt.key, strings.NewReader(tt.content), tt.contentType, int64(len(tt.content)), tt.metadata)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Upload() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			info, err := s.Head(ctx, tt.key)
			if err != nil {
				t.Fatalf("Head() error = %v", err)
			}
			if info.ContentType != tt.contentType {
				t.Errorf("ContentType = %q, want %q", info.ContentType, tt.contentType)
			}
			if info.Size != int64(len(tt.content)) {
				t.Errorf("Size = %d, want %d", info.Size, len(tt.content))
			}
			for k, v := range tt.metadata {
				if got := info.Metadata[strings.ToLower(k)]; got != v {
					t.Errorf("Metadata[%q] = %q, want %q", strings.ToLower(k), got, v)
				}
			}
		})
	}
}

func TestMemoryStorage_HeadMissing(t *testing.T) {
	s := NewMemoryStorage()
	_, err := s.Head(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Head() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorage_DeleteMissingIsNotError(t *testing.T) {
	s := NewMemoryStorage()
	if err := s.Delete(context.Background(), "avatars/processed/gone_512.png"); err != nil {
		t.Errorf("Delete() error = %v, want nil", err)
	}
}

func TestMemoryStorage_Download(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	s.Put("audios/originals/a1.mp3", "audio/mpeg", []byte("ID3"), nil)

	rc, err := s.Download(ctx, "audios/originals/a1.mp3")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "ID3" {
		t.Errorf("Download() data = %q", data)
	}

	if _, err := s.Download(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorage_FailOn(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	boom := errors.New("boom")
	s.Put("k", "text/plain", []byte("x"), nil)

	s.FailOn("k", boom)
	if err := s.Delete(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("Delete() error = %v, want boom", err)
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}

	s.FailOn("k", nil)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
}

func TestMemoryStorage_CanceledContext(t *testing.T) {
	s := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Upload(ctx, "k", strings.NewReader("x"), "text/plain", 1, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Upload() error = %v, want context.Canceled", err)
	}
	if _, err := s.Head(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Head() error = %v, want context.Canceled", err)
	}
}

func TestMemoryStorage_Concurrent(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "k" + string(rune('a'+i%26))
			_ = s.Upload(ctx, key, strings.NewReader("data"), "text/plain", 4, nil)
			_, _ = s.Exists(ctx, key)
		}(i)
	}
	wg.Wait()

	if s.Count() != 26 {
		t.Errorf("Count() = %d, want 26", s.Count())
	}
}

func TestNormalizeMetadata(t *testing.T) {
	got := normalizeMetadata(map[string]string{
		"Instance-Id":          "a",
		"X-Amz-Meta-Owner-Key": "b",
	})
	if got["instance-id"] != "a" {
		t.Errorf("instance-id = %q", got["instance-id"])
	}
	if got["owner-key"] != "b" {
		t.Errorf("owner-key = %q", got["owner-key"])
	}
}
