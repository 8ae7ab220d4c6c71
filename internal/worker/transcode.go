package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abdul-hamid-achik/vodcoach/internal/apperror"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/abdul-hamid-achik/vodcoach/internal/report"
	"github.com/abdul-hamid-achik/vodcoach/internal/transcode"
)

const (
	TranscodeComplete    = "COMPLETE"
	TranscodeError       = "ERROR"
	TranscodeProgressing = "PROGRESSING"
)

// TranscodeEvent is an EventBridge "MediaConvert Job State Change" event.
type TranscodeEvent struct {
	DetailType string `json:"detail-type"`
	Source     string `json:"source"`
	Detail     struct {
		Status       string            `json:"status"`
		JobID        string            `json:"jobId"`
		UserMetadata map[string]string `json:"userMetadata"`
		ErrorCode    int               `json:"errorCode"`
		ErrorMessage string            `json:"errorMessage"`
	} `json:"detail"`
}

func decodeTranscodeEvent(body []byte) (TranscodeEvent, error) {
	var e TranscodeEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return e, apperror.Wrap(fmt.Errorf("decode transcode event: %w", err), apperror.ErrMalformedBody)
	}
	return e, nil
}

// TranscodeStatusHandler records the outcome of transcode jobs. Completed
// outputs arrive separately as processed notifications on the uploads queue.
type TranscodeStatusHandler struct {
	deps *Dependencies
}

var _ queue.Handler = (*TranscodeStatusHandler)(nil)

func NewTranscodeStatusHandler(deps *Dependencies) *TranscodeStatusHandler {
	return &TranscodeStatusHandler{deps: deps}
}

func (h *TranscodeStatusHandler) Name() string {
	return "transcode-status"
}

// Target prefers the instance stamped into the job's user metadata and falls
// back to the original object's metadata.
func (h *TranscodeStatusHandler) Target(ctx context.Context, body []byte) (string, error) {
	e, err := decodeTranscodeEvent(body)
	if err != nil {
		return "", err
	}
	md := e.Detail.UserMetadata
	if instance, ok := md[transcode.MetadataInstanceID]; ok {
		return instance, nil
	}
	if original := md[transcode.MetadataOriginalKey]; original != "" {
		return h.deps.Affinity.Target(ctx, original)
	}
	return "", nil
}

func (h *TranscodeStatusHandler) Handle(ctx context.Context, m queue.Message) error {
	e, err := decodeTranscodeEvent(m.Body)
	if err != nil {
		return err
	}

	original := e.Detail.UserMetadata[transcode.MetadataOriginalKey]
	log := logger.FromContext(ctx).With("transcode_job_id", e.Detail.JobID, "status", e.Detail.Status, "key", original)

	metrics.RecordTranscodeStatus(e.Detail.Status)

	switch e.Detail.Status {
	case TranscodeError:
		jobErr := apperror.Wrap(
			fmt.Errorf("transcode job %s for %s failed: %d %s", e.Detail.JobID, original, e.Detail.ErrorCode, e.Detail.ErrorMessage),
			apperror.ErrJobFailed,
		)
		log.Error("transcode job failed", "error_code", e.Detail.ErrorCode, "error_message", e.Detail.ErrorMessage)
		h.deps.Reporter.Error(ctx, jobErr, report.Fields{
			"key":              original,
			"transcode_job_id": e.Detail.JobID,
		})
		return nil
	case TranscodeComplete:
		log.Info("transcode job complete")
	default:
		log.Debug("transcode job state change")
	}
	return nil
}
