// Package imageproc hands avatar originals to the image processing function.
// The invocation is fire-and-forget; the function's output arrives later as a
// processed-key notification on the uploads queue.
package imageproc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/breaker"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/tracing"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	gobreaker "github.com/sony/gobreaker/v2"
)

// LambdaAPI is the subset of *lambda.Client used here.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

type Invoker struct {
	api      LambdaAPI
	function string
	cb       *gobreaker.CircuitBreaker[*lambda.InvokeOutput]
}

func New(awsCfg aws.Config, function string) *Invoker {
	return NewWithAPI(lambda.NewFromConfig(awsCfg), function)
}

func NewWithAPI(api LambdaAPI, function string) *Invoker {
	return &Invoker{
		api:      api,
		function: function,
		cb:       breaker.New[*lambda.InvokeOutput]("image-processor", breaker.DefaultConfig()),
	}
}

// Payload builds the S3 event the processor function consumes.
func Payload(bucket, key string) ([]byte, error) {
	evt := events.S3Event{Records: []events.S3EventRecord{{
		EventSource: "vodcoach:pipeline",
		EventName:   "ObjectCreated:Put",
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: bucket},
			Object: events.S3Object{Key: key},
		},
	}}}
	return json.Marshal(evt)
}

func (i *Invoker) Process(ctx context.Context, bucket, key string) error {
	payload, err := Payload(bucket, key)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	ctx, span := tracing.StartClientSpan(ctx, "lambda", "Invoke")
	start := time.Now()
	out, err := i.cb.Execute(func() (*lambda.InvokeOutput, error) {
		return i.api.Invoke(ctx, &lambda.InvokeInput{
			FunctionName:   aws.String(i.function),
			InvocationType: types.InvocationTypeEvent,
			Payload:        payload,
		})
	})
	metrics.RecordExternalCall("lambda", "Invoke", err, time.Since(start).Seconds())
	tracing.End(span, err)
	if err != nil {
		return breaker.Classify(fmt.Errorf("invoke %s for %s: %w", i.function, key, err))
	}
	if out.FunctionError != nil {
		return breaker.Classify(fmt.Errorf("invoke %s for %s: %s", i.function, key, aws.ToString(out.FunctionError)))
	}
	return nil
}
