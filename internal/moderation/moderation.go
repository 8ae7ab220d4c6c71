// Package moderation screens uploads with Amazon Rekognition. Images are
// checked synchronously; videos start an asynchronous job whose completion is
// published to an SNS topic feeding the moderation queue.
package moderation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/breaker"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/tracing"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	gobreaker "github.com/sony/gobreaker/v2"
)

type Label struct {
	Name        string
	ParentName  string
	Confidence  float32
	TimestampMS int64
}

// RekognitionAPI is the subset of *rekognition.Client used here.
type RekognitionAPI interface {
	DetectModerationLabels(ctx context.Context, params *rekognition.DetectModerationLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error)
	StartContentModeration(ctx context.Context, params *rekognition.StartContentModerationInput, optFns ...func(*rekognition.Options)) (*rekognition.StartContentModerationOutput, error)
	GetContentModeration(ctx context.Context, params *rekognition.GetContentModerationInput, optFns ...func(*rekognition.Options)) (*rekognition.GetContentModerationOutput, error)
}

type Config struct {
	MinConfidence float32
	SNSTopicARN   string
	RoleARN       string
}

type Client struct {
	api RekognitionAPI
	cfg Config
	cb  *gobreaker.CircuitBreaker[any]
}

func New(awsCfg aws.Config, cfg Config) *Client {
	return NewWithAPI(rekognition.NewFromConfig(awsCfg), cfg)
}

func NewWithAPI(api RekognitionAPI, cfg Config) *Client {
	return &Client{
		api: api,
		cfg: cfg,
		cb:  breaker.New[any]("rekognition", breaker.DefaultConfig()),
	}
}

func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, span := tracing.StartClientSpan(ctx, "rekognition", op)
	start := time.Now()
	out, err := c.cb.Execute(func() (any, error) { return fn(ctx) })
	metrics.RecordExternalCall("rekognition", op, err, time.Since(start).Seconds())
	tracing.End(span, err)
	if err != nil {
		return nil, breaker.Classify(fmt.Errorf("rekognition %s: %w", op, err))
	}
	return out, nil
}

func (c *Client) DetectImageLabels(ctx context.Context, bucket, key string) ([]Label, error) {
	out, err := c.call(ctx, "DetectModerationLabels", func(ctx context.Context) (any, error) {
		return c.api.DetectModerationLabels(ctx, &rekognition.DetectModerationLabelsInput{
			Image: &types.Image{
				S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)},
			},
			MinConfidence: aws.Float32(c.cfg.MinConfidence),
		})
	})
	if err != nil {
		return nil, err
	}

	resp := out.(*rekognition.DetectModerationLabelsOutput)
	labels := make([]Label, 0, len(resp.ModerationLabels))
	for _, l := range resp.ModerationLabels {
		labels = append(labels, toLabel(l, 0))
	}
	return labels, nil
}

// StartVideoModeration starts an asynchronous job. token makes the start
// idempotent: Rekognition returns the original job for a repeated token.
func (c *Client) StartVideoModeration(ctx context.Context, bucket, key, token string) (string, error) {
	in := &rekognition.StartContentModerationInput{
		Video: &types.Video{
			S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)},
		},
		MinConfidence:      aws.Float32(c.cfg.MinConfidence),
		ClientRequestToken: aws.String(token),
	}
	if c.cfg.SNSTopicARN != "" {
		in.NotificationChannel = &types.NotificationChannel{
			SNSTopicArn: aws.String(c.cfg.SNSTopicARN),
			RoleArn:     aws.String(c.cfg.RoleARN),
		}
	}

	out, err := c.call(ctx, "StartContentModeration", func(ctx context.Context) (any, error) {
		return c.api.StartContentModeration(ctx, in)
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.(*rekognition.StartContentModerationOutput).JobId), nil
}

// VideoLabels pages through a finished job's detections.
func (c *Client) VideoLabels(ctx context.Context, jobID string) ([]Label, error) {
	var labels []Label
	var next *string
	for {
		out, err := c.call(ctx, "GetContentModeration", func(ctx context.Context) (any, error) {
			return c.api.GetContentModeration(ctx, &rekognition.GetContentModerationInput{
				JobId:      aws.String(jobID),
				NextToken:  next,
				MaxResults: aws.Int32(1000),
			})
		})
		if err != nil {
			return nil, err
		}

		resp := out.(*rekognition.GetContentModerationOutput)
		if resp.JobStatus != types.VideoJobStatusSucceeded {
			return nil, fmt.Errorf("moderation job %s is %s: %s", jobID, resp.JobStatus, aws.ToString(resp.StatusMessage))
		}
		for _, d := range resp.ModerationLabels {
			if d.ModerationLabel == nil {
				continue
			}
			labels = append(labels, toLabel(*d.ModerationLabel, d.Timestamp))
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			return labels, nil
		}
		next = resp.NextToken
	}
}

func toLabel(l types.ModerationLabel, ts int64) Label {
	return Label{
		Name:        aws.ToString(l.Name),
		ParentName:  aws.ToString(l.ParentName),
		Confidence:  aws.ToFloat32(l.Confidence),
		TimestampMS: ts,
	}
}

// RequestToken derives a stable idempotency token for key that satisfies
// AWS client request token rules (64 chars of [0-9a-f]).
func RequestToken(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
