package cli

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/vodcoach/internal/config"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/ledger"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type StuckLister interface {
	ListStuckAssets(ctx context.Context, arg db.ListStuckAssetsParams) ([]db.StuckAsset, error)
}

// backend is what the pipeline commands talk to.
type backend struct {
	Queries StuckLister
	Uploads queue.Publisher
	Ledger  ledger.Ledger
	Bucket  string
	close   []func()
}

func (b *backend) Close() {
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
}

// openBackend is replaced in tests.
var openBackend = connect

func connect(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	b := &backend{Bucket: cfg.Bucket}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	b.close = append(b.close, pool.Close)
	b.Queries = db.New(pool)

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	b.close = append(b.close, func() { _ = redisClient.Close() })
	b.Ledger = ledger.NewRedisLedger(redisClient, cfg.LedgerTTLs())

	target, ok := cfg.QueueURL(config.QueueUploads)
	if !ok {
		b.Close()
		return nil, fmt.Errorf("QUEUE_URL_UPLOADS is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	conn, err := queue.Dial(queue.DialConfig{Backend: cfg.QueueBackend, AWS: awsCfg, AMQPURL: cfg.AMQPURL, AMQPRetryDelay: cfg.AMQPRetryDelay}, config.QueueUploads, target)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to open uploads queue: %w", err)
	}
	b.close = append(b.close, func() { _ = conn.Close() })
	b.Uploads = conn

	return b, nil
}
