// Package transcribe converts coaching audio to text through an
// OpenAI-compatible speech-to-text endpoint.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/breaker"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/tracing"
	"github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"
)

type API interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

type Client struct {
	api   API
	model string
	cb    *gobreaker.CircuitBreaker[string]
}

func New(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewWithAPI(openai.NewClientWithConfig(cfg))
}

func NewWithAPI(api API) *Client {
	return &Client{
		api:   api,
		model: openai.Whisper1,
		cb:    breaker.New[string]("transcription", breaker.DefaultConfig()),
	}
}

// Transcribe returns the text of the audio in r. name carries the file
// extension the service uses to detect the format.
func (c *Client) Transcribe(ctx context.Context, name string, r io.Reader) (string, error) {
	ctx, span := tracing.StartClientSpan(ctx, "openai", "CreateTranscription")
	start := time.Now()

	text, err := c.cb.Execute(func() (string, error) {
		resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.model,
			FilePath: name,
			Reader:   r,
			Format:   openai.AudioResponseFormatJSON,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})

	metrics.RecordExternalCall("openai", "CreateTranscription", err, time.Since(start).Seconds())
	tracing.End(span, err)
	if err != nil {
		return "", breaker.Classify(fmt.Errorf("transcribe %s: %w", name, err))
	}
	return text, nil
}
