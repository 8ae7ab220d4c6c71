package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/vodcoach/internal/apperror"
	"github.com/abdul-hamid-achik/vodcoach/internal/asset"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ScheduledTask expires a recording whose upload never arrived.
type ScheduledTask struct {
	RecordingID string  `json:"recordingId"`
	InstanceID  *string `json:"instanceId"`
}

func NewScheduledTask(recordingID uuid.UUID, instance string) ScheduledTask {
	t := ScheduledTask{RecordingID: recordingID.String()}
	if instance != "" {
		t.InstanceID = &instance
	}
	return t
}

func decodeScheduledTask(body []byte) (ScheduledTask, error) {
	var t ScheduledTask
	if err := json.Unmarshal(body, &t); err != nil {
		return t, apperror.Wrap(fmt.Errorf("decode scheduled task: %w", err), apperror.ErrMalformedBody)
	}
	return t, nil
}

type ScheduledHandler struct {
	deps *Dependencies
}

var _ queue.Handler = (*ScheduledHandler)(nil)

func NewScheduledHandler(deps *Dependencies) *ScheduledHandler {
	return &ScheduledHandler{deps: deps}
}

func (h *ScheduledHandler) Name() string {
	return "scheduled"
}

func (h *ScheduledHandler) Target(ctx context.Context, body []byte) (string, error) {
	t, err := decodeScheduledTask(body)
	if err != nil {
		return "", err
	}
	if t.InstanceID == nil {
		return "", nil
	}
	return *t.InstanceID, nil
}

func (h *ScheduledHandler) Handle(ctx context.Context, m queue.Message) error {
	t, err := decodeScheduledTask(m.Body)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(t.RecordingID)
	if err != nil {
		return apperror.Wrap(fmt.Errorf("recording id %q: %w", t.RecordingID, err), apperror.ErrMalformedBody)
	}
	pgID := pgtype.UUID{Bytes: id, Valid: true}

	log := logger.FromContext(ctx).With("recording_id", id.String())

	rec, err := h.deps.Queries.GetRecording(ctx, pgID)
	if errors.Is(err, db.ErrNotFound) {
		log.Debug("recording already gone")
		return nil
	}
	if err != nil {
		return apperror.Transport(fmt.Errorf("get recording %s: %w", id, err))
	}
	state, err := asset.ParseState(string(rec.State))
	if err != nil {
		return apperror.Fatal(fmt.Errorf("recording %s: %w", id, err))
	}
	if state != asset.StateCreated {
		log.Debug("recording upload arrived, nothing to expire", "state", state)
		return nil
	}

	// The blob goes first: once the row is gone a redelivery can no longer
	// find the key to delete.
	if err := h.deps.Storage.Delete(ctx, rec.OriginalKey); err != nil {
		return apperror.Transport(fmt.Errorf("delete original %s: %w", rec.OriginalKey, err))
	}

	deleted, err := h.deps.Queries.DeleteRecordingIfCreated(ctx, pgID)
	if err != nil {
		return apperror.Transport(fmt.Errorf("delete recording %s: %w", id, err))
	}
	if deleted == 0 {
		log.Warn("recording left created state while its original was being expired", "key", rec.OriginalKey)
		return nil
	}

	metrics.RecordRejection("recording", "expired")
	log.Info("abandoned recording expired", "key", rec.OriginalKey)
	return nil
}
