package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type ExpiryStore interface {
	ListAbandonedRecordings(ctx context.Context, arg db.ListAbandonedRecordingsParams) ([]pgtype.UUID, error)
}

type ExpiryDependencies struct {
	Queries   ExpiryStore
	Scheduled queue.Publisher
	MaxAge    time.Duration
	BatchSize int32
}

type ExpiryStats struct {
	Enqueued      int
	PublishErrors int
}

// RunExpirySweep enqueues one scheduled task per recording still waiting for
// its upload after MaxAge. It makes a single pass; rows are only removed once
// the scheduled handler runs, so a second pass would see the same ids.
func RunExpirySweep(ctx context.Context, deps *ExpiryDependencies) (*ExpiryStats, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	ids, err := deps.Queries.ListAbandonedRecordings(ctx, db.ListAbandonedRecordingsParams{
		CreatedBefore: pgtype.Timestamptz{Time: start.Add(-deps.MaxAge), Valid: true},
		Limit:         deps.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned recordings: %w", err)
	}

	stats := &ExpiryStats{}
	for _, id := range ids {
		body, err := json.Marshal(NewScheduledTask(uuid.UUID(id.Bytes), ""))
		if err != nil {
			return stats, fmt.Errorf("failed to encode scheduled task: %w", err)
		}
		if err := deps.Scheduled.Send(ctx, body, nil); err != nil {
			log.Warn("failed to enqueue expiry task",
				"recording_id", uuid.UUID(id.Bytes).String(),
				"error", err,
			)
			stats.PublishErrors++
			continue
		}
		stats.Enqueued++
	}

	log.Info("expiry sweep completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"enqueued", stats.Enqueued,
		"publish_errors", stats.PublishErrors,
	)
	return stats, nil
}
