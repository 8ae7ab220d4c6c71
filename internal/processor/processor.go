// Package processor defines the contract of the media transforms run by the
// out-of-process processors.
package processor

import (
	"context"
	"errors"
	"io"
)

var (
	ErrUnsupportedType = errors.New("processor: unsupported file type")
	ErrInvalidConfig   = errors.New("processor: invalid configuration")
	ErrFileTooLarge    = errors.New("processor: file too large")
	ErrCorruptedFile   = errors.New("processor: file appears corrupted")
)

type Processor interface {
	Process(ctx context.Context, opts *Options, input io.Reader) (*Result, error)
	SupportedTypes() []string
	Name() string
}

type Options struct {
	Width   int
	Height  int
	Quality int
	// Fit is one of "fit" (default), "cover" or "fill".
	Fit    string
	Format string
}

type Result struct {
	Data        io.Reader
	ContentType string
	Extension   string
	Size        int64
	Metadata    ResultMetadata
}

type ResultMetadata struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format,omitempty"`
}

type Config struct {
	MaxFileSize  int64
	Quality      int
	MaxDimension int
}

func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:  20 * 1024 * 1024,
		Quality:      85,
		MaxDimension: 8192,
	}
}
