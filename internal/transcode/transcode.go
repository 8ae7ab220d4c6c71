// Package transcode submits MediaConvert jobs. MediaConvert needs an
// account-specific endpoint; it is discovered once and cached.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/breaker"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/tracing"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	gobreaker "github.com/sony/gobreaker/v2"
)

var ErrNoEndpoint = errors.New("transcode: no MediaConvert endpoint available")

// MediaConvertAPI is the subset of *mediaconvert.Client used here.
type MediaConvertAPI interface {
	DescribeEndpoints(ctx context.Context, params *mediaconvert.DescribeEndpointsInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.DescribeEndpointsOutput, error)
	CreateJob(ctx context.Context, params *mediaconvert.CreateJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error)
}

type Client struct {
	discovery MediaConvertAPI
	forURL    func(endpoint string) MediaConvertAPI
	cb        *gobreaker.CircuitBreaker[any]

	mu       sync.Mutex
	endpoint string
	jobs     MediaConvertAPI
}

// New builds a client. A non-empty endpoint skips discovery.
func New(awsCfg aws.Config, endpoint string) *Client {
	return NewWithAPI(mediaconvert.NewFromConfig(awsCfg), endpoint, func(url string) MediaConvertAPI {
		return mediaconvert.NewFromConfig(awsCfg, func(o *mediaconvert.Options) {
			o.BaseEndpoint = aws.String(url)
		})
	})
}

func NewWithAPI(discovery MediaConvertAPI, endpoint string, forURL func(string) MediaConvertAPI) *Client {
	return &Client{
		discovery: discovery,
		forURL:    forURL,
		endpoint:  endpoint,
		cb:        breaker.New[any]("mediaconvert", breaker.DefaultConfig()),
	}
}

// DescribeEndpoints returns the cached endpoint, discovering it on first use.
func (c *Client) DescribeEndpoints(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.endpoint != "" {
		return c.endpoint, nil
	}

	out, err := c.call(ctx, "DescribeEndpoints", func(ctx context.Context) (any, error) {
		return c.discovery.DescribeEndpoints(ctx, &mediaconvert.DescribeEndpointsInput{})
	})
	if err != nil {
		return "", err
	}
	resp := out.(*mediaconvert.DescribeEndpointsOutput)
	if len(resp.Endpoints) == 0 || aws.ToString(resp.Endpoints[0].Url) == "" {
		return "", breaker.Classify(ErrNoEndpoint)
	}
	c.endpoint = aws.ToString(resp.Endpoints[0].Url)
	return c.endpoint, nil
}

func (c *Client) jobsClient(ctx context.Context) (MediaConvertAPI, error) {
	endpoint, err := c.DescribeEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jobs == nil {
		c.jobs = c.forURL(endpoint)
	}
	return c.jobs, nil
}

// CreateJob submits p and returns the job id.
func (c *Client) CreateJob(ctx context.Context, p Profile) (string, error) {
	jobs, err := c.jobsClient(ctx)
	if err != nil {
		return "", err
	}

	in := &mediaconvert.CreateJobInput{
		Role:         aws.String(p.Role),
		Settings:     p.Settings,
		UserMetadata: p.UserMetadata,
	}
	if p.Token != "" {
		in.ClientRequestToken = aws.String(p.Token)
	}

	out, err := c.call(ctx, "CreateJob", func(ctx context.Context) (any, error) {
		return jobs.CreateJob(ctx, in)
	})
	if err != nil {
		return "", err
	}
	resp := out.(*mediaconvert.CreateJobOutput)
	if resp.Job == nil {
		return "", nil
	}
	return aws.ToString(resp.Job.Id), nil
}

func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, span := tracing.StartClientSpan(ctx, "mediaconvert", op)
	start := time.Now()
	out, err := c.cb.Execute(func() (any, error) { return fn(ctx) })
	metrics.RecordExternalCall("mediaconvert", op, err, time.Since(start).Seconds())
	tracing.End(span, err)
	if err != nil {
		return nil, breaker.Classify(fmt.Errorf("mediaconvert %s: %w", op, err))
	}
	return out, nil
}
