// Package avatarproc is the image processor invoked asynchronously for every
// accepted avatar original. It writes one square PNG next to the original
// under the processed stage, which in turn produces the notification that
// completes the avatar.
package avatarproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/vodcoach/internal/affinity"
	"github.com/abdul-hamid-achik/vodcoach/internal/asset"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/processor"
	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
	"github.com/aws/aws-lambda-go/events"
)

const (
	Size   = 512
	suffix = "_512.png"
)

// ProcessedKey is the key the processed avatar of original is written to.
func ProcessedKey(original asset.Key) string {
	return asset.ProcessedPrefix(original.Kind, original.Fragment) + suffix
}

type Handler struct {
	storage   storage.Storage
	processor processor.Processor
}

func New(store storage.Storage, proc processor.Processor) *Handler {
	return &Handler{storage: store, processor: proc}
}

// HandleS3Event processes every avatar original in the event. Other keys are
// ignored so a misrouted invocation is harmless.
func (h *Handler) HandleS3Event(ctx context.Context, event events.S3Event) error {
	var errs []error
	for _, rec := range event.Records {
		key, err := asset.ParseNotificationKey(rec.S3.Object.Key)
		if err != nil || key.Kind != asset.KindAvatar || key.Stage != asset.StageOriginals {
			logger.FromContext(ctx).Debug("skipping object", "key", rec.S3.Object.Key)
			continue
		}
		if _, err := h.Process(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Process resizes one avatar original and returns the key written.
func (h *Handler) Process(ctx context.Context, original asset.Key) (string, error) {
	log := logger.FromContext(ctx).With("key", original.Raw)

	info, err := h.storage.Head(ctx, original.Raw)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", original.Raw, err)
	}

	reader, err := h.storage.Download(ctx, original.Raw)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", original.Raw, err)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			log.Warn("failed to close original", "error", cerr)
		}
	}()

	result, err := h.processor.Process(ctx, &processor.Options{
		Width:  Size,
		Height: Size,
		Fit:    "fit",
		Format: "png",
	}, reader)
	if err != nil {
		return "", fmt.Errorf("resize %s: %w", original.Raw, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Data); err != nil {
		return "", fmt.Errorf("buffer result: %w", err)
	}

	// The processed object keeps the original's affinity so the completion
	// notification is consumed by the instance that owns the row.
	var metadata map[string]string
	if instance := info.Metadata[affinity.MetadataKey]; instance != "" {
		metadata = map[string]string{affinity.MetadataKey: instance}
	}

	dest := ProcessedKey(original)
	if err := h.storage.Upload(ctx, dest, &buf, result.ContentType, int64(buf.Len()), metadata); err != nil {
		return "", fmt.Errorf("upload %s: %w", dest, err)
	}

	log.Info("avatar processed", "processed_key", dest,
		"width", result.Metadata.Width, "height", result.Metadata.Height, "size", result.Size)
	return dest, nil
}
