// Package image resizes uploaded pictures for the avatar processor.
package image

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/abdul-hamid-achik/vodcoach/internal/processor"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var _ processor.Processor = (*ResizeProcessor)(nil)

type ResizeProcessor struct {
	config *processor.Config
}

func NewResizeProcessor(cfg *processor.Config) *ResizeProcessor {
	if cfg == nil {
		cfg = processor.DefaultConfig()
	}
	return &ResizeProcessor{config: cfg}
}

func (p *ResizeProcessor) Name() string {
	return "resize"
}

func (p *ResizeProcessor) SupportedTypes() []string {
	return []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
	}
}

// Process decodes input, honouring EXIF orientation, and re-encodes it at the
// requested size. Inputs larger than MaxFileSize bytes or MaxDimension pixels
// on either side are refused before the full decode.
func (p *ResizeProcessor) Process(ctx context.Context, opts *processor.Options, input io.Reader) (*processor.Result, error) {
	if opts.Width <= 0 && opts.Height <= 0 {
		return nil, fmt.Errorf("%w: width or height is required", processor.ErrInvalidConfig)
	}

	data, err := readLimited(input, p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}
	if max := p.config.MaxDimension; max > 0 && (cfg.Width > max || cfg.Height > max) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", processor.ErrFileTooLarge, cfg.Width, cfg.Height, max)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bufio.NewReader(bytes.NewReader(data)), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}

	bounds := img.Bounds()
	targetW, targetH := calculateDimensions(bounds.Dx(), bounds.Dy(), opts.Width, opts.Height)
	resized := resizeImage(img, targetW, targetH, opts.Fit)

	quality := opts.Quality
	if quality <= 0 {
		quality = p.config.Quality
	}

	outputFormat := format
	if opts.Format != "" {
		outputFormat = opts.Format
	}

	buf, contentType, ext, err := encodeImage(resized, outputFormat, quality)
	if err != nil {
		return nil, err
	}

	out := resized.Bounds()
	return &processor.Result{
		Data:        bytes.NewReader(buf.Bytes()),
		ContentType: contentType,
		Extension:   ext,
		Size:        int64(buf.Len()),
		Metadata: processor.ResultMetadata{
			Width:  out.Dx(),
			Height: out.Dy(),
			Format: outputFormat,
		},
	}, nil
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: more than %d bytes", processor.ErrFileTooLarge, max)
	}
	return data, nil
}

func resizeImage(img image.Image, width, height int, fit string) image.Image {
	switch fit {
	case "cover":
		return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
	case "fill":
		return imaging.Resize(img, width, height, imaging.Lanczos)
	default:
		return imaging.Fit(img, width, height, imaging.Lanczos)
	}
}

// calculateDimensions fills a zero side from the source aspect ratio.
func calculateDimensions(srcW, srcH, w, h int) (int, int) {
	switch {
	case w == 0 && h == 0:
		return srcW, srcH
	case w == 0:
		return int(float64(h) * float64(srcW) / float64(srcH)), h
	case h == 0:
		return w, int(float64(w) * float64(srcH) / float64(srcW))
	}
	return w, h
}

type encoding struct {
	format      imaging.Format
	contentType string
	ext         string
}

var encodings = map[string]encoding{
	"jpeg": {imaging.JPEG, "image/jpeg", ".jpg"},
	"jpg":  {imaging.JPEG, "image/jpeg", ".jpg"},
	"gif":  {imaging.GIF, "image/gif", ".gif"},
	"png":  {imaging.PNG, "image/png", ".png"},
}

// encodeImage writes img as png, gif or jpeg. Formats without an encoder,
// webp included, fall back to png so transparency survives.
func encodeImage(img image.Image, format string, quality int) (*bytes.Buffer, string, string, error) {
	enc, ok := encodings[format]
	if !ok {
		enc = encodings["png"]
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, enc.format, imaging.JPEGQuality(quality)); err != nil {
		return nil, "", "", fmt.Errorf("encode %s: %w", enc.ext, err)
	}
	return &buf, enc.contentType, enc.ext, nil
}
