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
	"github.com/abdul-hamid-achik/vodcoach/internal/moderation"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/abdul-hamid-achik/vodcoach/internal/report"
	"github.com/abdul-hamid-achik/vodcoach/internal/transcode"
)

const moderationSucceeded = "SUCCEEDED"

// ModerationNotification is the completion notice of an asynchronous video
// moderation job.
type ModerationNotification struct {
	JobID     string `json:"JobId"`
	Status    string `json:"Status"`
	API       string `json:"API"`
	JobTag    string `json:"JobTag"`
	Timestamp int64  `json:"Timestamp"`
	Video     struct {
		S3ObjectName string `json:"S3ObjectName"`
		S3Bucket     string `json:"S3Bucket"`
	} `json:"Video"`
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// DecodeModerationNotification accepts the notice either raw or wrapped in an
// SNS envelope.
func DecodeModerationNotification(body []byte) (ModerationNotification, error) {
	var n ModerationNotification

	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		body = []byte(env.Message)
	}
	if err := json.Unmarshal(body, &n); err != nil {
		return n, apperror.Wrap(fmt.Errorf("decode moderation notification: %w", err), apperror.ErrMalformedBody)
	}
	if n.JobID == "" {
		return n, apperror.Wrap(errors.New("moderation notification has no job id"), apperror.ErrMalformedBody)
	}
	return n, nil
}

// ModerationHandler turns a finished video moderation job into either a
// rejection or a transcode job.
type ModerationHandler struct {
	deps *Dependencies
}

var _ queue.Handler = (*ModerationHandler)(nil)

func NewModerationHandler(deps *Dependencies) *ModerationHandler {
	return &ModerationHandler{deps: deps}
}

func (h *ModerationHandler) Name() string {
	return "moderation"
}

func (h *ModerationHandler) Target(ctx context.Context, body []byte) (string, error) {
	n, err := DecodeModerationNotification(body)
	if err != nil {
		return "", err
	}
	key, err := asset.ParseKey(n.Video.S3ObjectName)
	if err != nil {
		return "", nil
	}
	return h.deps.Affinity.Target(ctx, key.OriginalKey())
}

func (h *ModerationHandler) Handle(ctx context.Context, m queue.Message) error {
	n, err := DecodeModerationNotification(m.Body)
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx).With("moderation_job_id", n.JobID, "key", n.Video.S3ObjectName, "status", n.Status)
	ctx = logger.WithLogger(ctx, log)

	if n.Status != moderationSucceeded {
		return apperror.Wrap(fmt.Errorf("moderation job %s for %s ended with status %s", n.JobID, n.Video.S3ObjectName, n.Status), apperror.ErrJobFailed)
	}

	key, err := asset.ParseKey(n.Video.S3ObjectName)
	if err != nil || key.Kind != asset.KindRecording || key.Stage != asset.StageOriginals {
		log.Debug("moderation result for an object outside the recording originals")
		return nil
	}

	row, err := h.deps.Queries.MarkUploaded(ctx, db.TableRecordings, key.OriginalKey())
	if err != nil {
		return rowError(err, "load recording")
	}
	ok, err := advance(row.State, asset.StateUploaded)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("recording already processed")
		return nil
	}

	labels, err := h.deps.Moderation.VideoLabels(ctx, n.JobID)
	if err != nil {
		return err
	}
	if len(labels) > 0 {
		if err := h.deps.Storage.Delete(ctx, key.Raw); err != nil {
			return apperror.Transport(fmt.Errorf("delete rejected recording %s: %w", key.Raw, err))
		}
		metrics.RecordRejection(string(asset.KindRecording), "moderation")
		h.deps.Reporter.Event(ctx, "asset_rejected", report.Fields{
			"key":    key.Raw,
			"kind":   string(asset.KindRecording),
			"reason": "moderation",
			"labels": labelNames(labels),
		})
		log.Warn("recording rejected by moderation", "labels", len(labels))
		return nil
	}

	return claimAndStart(ctx, h.deps, ledgerTranscode+key.OriginalKey(), func(ctx context.Context) error {
		profile := transcode.RecordingProfile(h.deps.Bucket, key, h.deps.Instance, h.deps.MediaConvertRole, moderation.RequestToken(key.Raw))
		jobID, err := h.deps.Transcoder.CreateJob(ctx, profile)
		if err != nil {
			return err
		}
		metrics.RecordTranscodeStatus("SUBMITTED")
		log.Info("transcode job created", "transcode_job_id", jobID)
		return nil
	})
}
