package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
)

// InstrumentedStorage records per-operation counts, latencies and bytes moved.
// Only the operations the pipeline calls per message are wrapped.
type InstrumentedStorage struct {
	storage.Storage
}

func NewInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s}
}

// observe labels a missing object separately: affinity lookups and
// redelivered rejections routinely hit originals that are already gone.
func observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(op, status).Inc()
	StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64, metadata map[string]string) error {
	start := time.Now()
	err := s.Storage.Upload(ctx, key, reader, contentType, size, metadata)
	observe("upload", start, err)
	if err == nil {
		StorageBytesTotal.WithLabelValues("upload").Add(float64(size))
	}
	return err
}

func (s *InstrumentedStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	reader, err := s.Storage.Download(ctx, key)
	observe("download", start, err)
	if err != nil {
		return nil, err
	}
	return &instrumentedReadCloser{ReadCloser: reader}, nil
}

func (s *InstrumentedStorage) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	start := time.Now()
	info, err := s.Storage.Head(ctx, key)
	observe("head", start, err)
	return info, err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Storage.Delete(ctx, key)
	observe("delete", start, err)
	return err
}

type instrumentedReadCloser struct {
	io.ReadCloser
	bytesRead int64
}

func (r *instrumentedReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

func (r *instrumentedReadCloser) Close() error {
	StorageBytesTotal.WithLabelValues("download").Add(float64(r.bytesRead))
	return r.ReadCloser.Close()
}
