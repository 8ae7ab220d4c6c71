package avatarproc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"testing"

	"github.com/abdul-hamid-achik/vodcoach/internal/affinity"
	"github.com/abdul-hamid-achik/vodcoach/internal/asset"
	imageproc "github.com/abdul-hamid-achik/vodcoach/internal/processor/image"
	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func s3Event(keys ...string) events.S3Event {
	var event events.S3Event
	for _, k := range keys {
		var rec events.S3EventRecord
		rec.S3.Object.Key = k
		event.Records = append(event.Records, rec)
	}
	return event
}

func newHandler() (*Handler, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage()
	return New(store, imageproc.NewResizeProcessor(nil)), store
}

func TestProcessedKey(t *testing.T) {
	k, err := asset.ParseKey("avatars/originals/abc123")
	require.NoError(t, err)
	assert.Equal(t, "avatars/processed/abc123_512.png", ProcessedKey(k))
}

func TestHandleS3Event_WritesProcessedAvatar(t *testing.T) {
	h, store := newHandler()
	store.Put("avatars/originals/abc123", "image/jpeg", jpegBytes(t, 1024, 768),
		map[string]string{affinity.MetadataKey: "i-one"})

	require.NoError(t, h.HandleS3Event(context.Background(), s3Event("avatars/originals/abc123")))

	data, ok := store.GetData("avatars/processed/abc123_512.png")
	require.True(t, ok)

	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 384, img.Bounds().Dy())

	info, err := store.Head(context.Background(), "avatars/processed/abc123_512.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, "i-one", info.Metadata[affinity.MetadataKey])

	processed, err := asset.ParseKey("avatars/processed/abc123_512.png")
	require.NoError(t, err)
	assert.Equal(t, "avatars/originals/abc123", processed.OriginalKey())
	assert.Equal(t, asset.RolePrimary, asset.ProcessedRole(processed.Kind, processed.Ext()))
}

func TestHandleS3Event_NoAffinity(t *testing.T) {
	h, store := newHandler()
	store.Put("avatars/originals/xyz", "image/jpeg", jpegBytes(t, 64, 64), nil)

	require.NoError(t, h.HandleS3Event(context.Background(), s3Event("avatars/originals/xyz")))

	info, err := store.Head(context.Background(), "avatars/processed/xyz_512.png")
	require.NoError(t, err)
	assert.Empty(t, info.Metadata[affinity.MetadataKey])
}

func TestHandleS3Event_SkipsOtherKeys(t *testing.T) {
	h, store := newHandler()
	store.Put("recordings/originals/vid", "video/mp4", []byte("video"), nil)

	err := h.HandleS3Event(context.Background(), s3Event(
		"recordings/originals/vid",
		"avatars/processed/abc_512.png",
		"unrelated/object",
	))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count())
}

func TestHandleS3Event_MissingOriginal(t *testing.T) {
	h, _ := newHandler()

	err := h.HandleS3Event(context.Background(), s3Event("avatars/originals/gone"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestHandleS3Event_CorruptOriginal(t *testing.T) {
	h, store := newHandler()
	store.Put("avatars/originals/bad", "image/png", []byte("not an image"), nil)
	store.Put("avatars/originals/good", "image/jpeg", jpegBytes(t, 32, 32), nil)

	err := h.HandleS3Event(context.Background(), s3Event("avatars/originals/bad", "avatars/originals/good"))
	require.Error(t, err)

	_, ok := store.GetData("avatars/processed/good_512.png")
	assert.True(t, ok, "later records are still processed")
	_, ok = store.GetData("avatars/processed/bad_512.png")
	assert.False(t, ok)
}
