package queue

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

type Conn interface {
	Transport
	Publisher
}

type DialConfig struct {
	Backend        string
	AWS            aws.Config
	AMQPURL        string
	// AMQPRetryDelay is how long a released AMQP message waits on the retry
	// queue. Zero means DefaultAMQPRetryDelay.
	AMQPRetryDelay time.Duration
}

// Dial opens a dedicated connection to one logical queue. For SQS target is
// the queue URL; for AMQP it is the queue name.
func Dial(cfg DialConfig, name, target string) (Conn, error) {
	switch cfg.Backend {
	case "sqs", "":
		return NewSQSTransport(cfg.AWS, name, target), nil
	case "amqp":
		return NewAMQPTransport(cfg.AMQPURL, name, target, cfg.AMQPRetryDelay)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
