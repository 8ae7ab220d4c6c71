// Package affinity routes messages to the process instance that created the
// underlying blob. Instances tag every object they write with MetadataKey.
package affinity

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
)

const MetadataKey = "instance-id"

type Filter struct {
	storage  storage.Storage
	instance string
}

func New(store storage.Storage, instance string) *Filter {
	return &Filter{storage: store, instance: instance}
}

func (f *Filter) Instance() string {
	return f.instance
}

// Target returns the instance recorded on originalKey, or "" when the object
// carries no preference. A failed metadata read is returned as is.
func (f *Filter) Target(ctx context.Context, originalKey string) (string, error) {
	info, err := f.storage.Head(ctx, originalKey)
	if err != nil {
		return "", fmt.Errorf("read affinity metadata for %s: %w", originalKey, err)
	}
	return info.Metadata[MetadataKey], nil
}

// Owns reports whether a message targeted at target belongs to this instance.
func (f *Filter) Owns(target string) bool {
	return target == "" || target == f.instance
}

// Metadata returns the object metadata that pins new blobs to this instance.
func (f *Filter) Metadata() map[string]string {
	if f.instance == "" {
		return nil
	}
	return map[string]string{MetadataKey: f.instance}
}
