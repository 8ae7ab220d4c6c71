package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/abdul-hamid-achik/vodcoach/internal/apperror"
	"github.com/abdul-hamid-achik/vodcoach/internal/asset"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/ledger"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/moderation"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/abdul-hamid-achik/vodcoach/internal/report"
	"github.com/aws/aws-lambda-go/events"
)

// UploadHandler consumes object-storage notifications for originals and
// processed outputs and advances the matching asset row.
type UploadHandler struct {
	deps *Dependencies
}

var _ queue.Handler = (*UploadHandler)(nil)

func NewUploadHandler(deps *Dependencies) *UploadHandler {
	return &UploadHandler{deps: deps}
}

func (h *UploadHandler) Name() string {
	return "upload"
}

func decodeS3Event(body []byte) (events.S3Event, error) {
	var event events.S3Event
	if err := json.Unmarshal(body, &event); err != nil {
		return event, apperror.Wrap(fmt.Errorf("decode s3 event: %w", err), apperror.ErrMalformedBody)
	}
	return event, nil
}

// Target reads the affinity of the first record with a recognised key.
// Processed outputs are routed by their original's metadata.
func (h *UploadHandler) Target(ctx context.Context, body []byte) (string, error) {
	event, err := decodeS3Event(body)
	if err != nil {
		return "", err
	}
	for _, rec := range event.Records {
		key, err := asset.ParseNotificationKey(rec.S3.Object.Key)
		if err != nil {
			continue
		}
		lookup := key.Raw
		if key.Stage == asset.StageProcessed {
			lookup = key.OriginalKey()
		}
		return h.deps.Affinity.Target(ctx, lookup)
	}
	return "", nil
}

func (h *UploadHandler) Handle(ctx context.Context, m queue.Message) error {
	event, err := decodeS3Event(m.Body)
	if err != nil {
		return err
	}
	for _, rec := range event.Records {
		key, err := asset.ParseNotificationKey(rec.S3.Object.Key)
		if err != nil {
			logger.FromContext(ctx).Debug("ignoring object outside the key taxonomy", "key", rec.S3.Object.Key)
			continue
		}
		if err := h.handleKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (h *UploadHandler) handleKey(ctx context.Context, key asset.Key) error {
	log := logger.FromContext(ctx).With("key", key.Raw, "kind", key.Kind, "stage", key.Stage)
	ctx = logger.WithLogger(ctx, log)

	if key.Stage == asset.StageOriginals {
		return h.handleOriginal(ctx, key)
	}
	return h.handleProcessed(ctx, key)
}

func (h *UploadHandler) handleOriginal(ctx context.Context, key asset.Key) error {
	log := logger.FromContext(ctx)

	row, err := h.deps.Queries.MarkUploaded(ctx, tableFor(key.Kind), key.OriginalKey())
	if err != nil {
		return rowError(err, "mark "+string(key.Kind)+" uploaded")
	}
	ok, err := advance(row.State, asset.StateUploaded)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("asset already processed, duplicate notification")
		return nil
	}
	metrics.RecordTransition(string(key.Kind), string(row.State))
	log.Info("asset uploaded")

	switch key.Kind {
	case asset.KindAvatar:
		return h.processAvatar(ctx, key)
	case asset.KindRecording:
		return h.processRecording(ctx, key)
	case asset.KindAudio:
		return h.processAudio(ctx, key)
	}
	return nil
}

// checkContentType deletes originals whose declared type is not accepted for
// their kind. It returns the content type and whether processing continues.
func (h *UploadHandler) checkContentType(ctx context.Context, key asset.Key) (string, bool, error) {
	info, err := h.deps.Storage.Head(ctx, key.Raw)
	if err != nil {
		return "", false, storageError(err, "head "+key.Raw)
	}
	if !asset.AcceptsContentType(key.Kind, info.ContentType) {
		return info.ContentType, false, h.reject(ctx, key, "content_type", report.Fields{"content_type": info.ContentType})
	}
	return info.ContentType, true, nil
}

// reject removes the original blob. The row is left in its current state.
func (h *UploadHandler) reject(ctx context.Context, key asset.Key, reason string, fields report.Fields) error {
	if err := h.deps.Storage.Delete(ctx, key.Raw); err != nil {
		return apperror.Transport(fmt.Errorf("delete rejected original %s: %w", key.Raw, err))
	}

	if fields == nil {
		fields = report.Fields{}
	}
	fields["key"] = key.Raw
	fields["kind"] = string(key.Kind)
	fields["reason"] = reason

	metrics.RecordRejection(string(key.Kind), reason)
	h.deps.Reporter.Event(ctx, "asset_rejected", fields)
	logger.FromContext(ctx).Warn("original rejected", "reason", reason)
	return nil
}

func (h *UploadHandler) processAvatar(ctx context.Context, key asset.Key) error {
	log := logger.FromContext(ctx)

	if _, ok, err := h.checkContentType(ctx, key); err != nil || !ok {
		return err
	}

	labels, err := h.deps.Moderation.DetectImageLabels(ctx, h.deps.Bucket, key.Raw)
	if err != nil {
		return err
	}
	if len(labels) > 0 {
		return h.reject(ctx, key, "moderation", report.Fields{"labels": labelNames(labels)})
	}

	return claimAndStart(ctx, h.deps, ledgerAvatar+key.OriginalKey(), func(ctx context.Context) error {
		if err := h.deps.ImageProcessor.Process(ctx, h.deps.Bucket, key.Raw); err != nil {
			return err
		}
		log.Info("image processor invoked")
		return nil
	})
}

func (h *UploadHandler) processRecording(ctx context.Context, key asset.Key) error {
	log := logger.FromContext(ctx)

	if _, ok, err := h.checkContentType(ctx, key); err != nil || !ok {
		return err
	}

	return claimAndStart(ctx, h.deps, ledgerModeration+key.OriginalKey(), func(ctx context.Context) error {
		jobID, err := h.deps.Moderation.StartVideoModeration(ctx, h.deps.Bucket, key.Raw, moderation.RequestToken(key.Raw))
		if err != nil {
			return err
		}
		log.Info("video moderation started", "moderation_job_id", jobID)
		return nil
	})
}

func (h *UploadHandler) processAudio(ctx context.Context, key asset.Key) error {
	log := logger.FromContext(ctx)

	contentType, ok, err := h.checkContentType(ctx, key)
	if err != nil || !ok {
		return err
	}

	reader, err := h.deps.Storage.Download(ctx, key.Raw)
	if err != nil {
		return storageError(err, "download "+key.Raw)
	}
	defer closeSafely(reader, "audio original")

	transcript, err := h.deps.Transcriber.Transcribe(ctx, audioFileName(key, contentType), reader)
	if err != nil {
		return err
	}

	originalKey := key.OriginalKey()
	if err := h.deps.Queries.SetAudioTranscript(ctx, db.SetAudioTranscriptParams{
		OriginalKey: originalKey,
		Transcript:  transcript,
	}); err != nil {
		return rowError(err, "store transcript")
	}

	row, err := h.deps.Queries.MarkProcessed(ctx, db.MarkProcessedParams{
		Table:        db.TableAudios,
		OriginalKey:  originalKey,
		ProcessedKey: originalKey,
	})
	if err != nil {
		return rowError(err, "mark audio processed")
	}
	if !row.Changed {
		log.Debug("audio already processed")
		return nil
	}

	metrics.RecordTransition(string(asset.KindAudio), string(asset.StateProcessed))
	log.Info("audio transcribed", "transcript_chars", len(transcript))
	return nil
}

// claimAndStart starts an external job at most once per ledger key. A claim
// held by an unfinished attempt keeps the message for redelivery instead of
// acknowledging a job that may never have started.
func claimAndStart(ctx context.Context, deps *Dependencies, ledgerKey string, start func(context.Context) error) error {
	log := logger.FromContext(ctx).With("ledger_key", ledgerKey)

	status, err := deps.Ledger.Claim(ctx, ledgerKey)
	if err != nil {
		return apperror.Transport(fmt.Errorf("claim %s: %w", ledgerKey, err))
	}
	switch status {
	case ledger.Done:
		log.Debug("job already started")
		return nil
	case ledger.InFlight:
		return apperror.Wrap(fmt.Errorf("claim %s is pending", ledgerKey), apperror.ErrJobInFlight)
	}

	// The claim outlives the handler context, so it is settled on a detached one.
	settle, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerSettleTimeout)
	defer cancel()

	if err := start(ctx); err != nil {
		if ferr := deps.Ledger.Forget(settle, ledgerKey); ferr != nil {
			log.Warn("failed to release ledger claim", "error", ferr)
		}
		return err
	}
	if err := deps.Ledger.Complete(settle, ledgerKey); err != nil {
		log.Warn("failed to complete ledger claim", "error", err)
	}
	return nil
}

func (h *UploadHandler) handleProcessed(ctx context.Context, key asset.Key) error {
	log := logger.FromContext(ctx)
	originalKey := key.OriginalKey()

	switch asset.ProcessedRole(key.Kind, key.Ext()) {
	case asset.RoleThumbnail:
		if _, err := h.deps.Queries.SetRecordingThumbnail(ctx, db.SetRecordingThumbnailParams{
			OriginalKey:  originalKey,
			ThumbnailKey: key.Raw,
		}); err != nil {
			return rowError(err, "set recording thumbnail")
		}
		log.Info("recording thumbnail stored")
		return nil

	case asset.RolePrimary:
		if key.Kind == asset.KindAvatar {
			return h.replaceAvatar(ctx, key)
		}
		row, err := h.deps.Queries.MarkProcessed(ctx, db.MarkProcessedParams{
			Table:        tableFor(key.Kind),
			OriginalKey:  originalKey,
			ProcessedKey: key.Raw,
		})
		if err != nil {
			return rowError(err, "mark "+string(key.Kind)+" processed")
		}
		if !row.Changed {
			log.Debug("processed key already recorded, duplicate notification")
			return nil
		}
		metrics.RecordTransition(string(key.Kind), string(asset.StateProcessed))
		log.Info("asset processed")
		return nil

	default:
		log.Debug("processed object has no role", "ext", key.Ext())
		return nil
	}
}

func (h *UploadHandler) replaceAvatar(ctx context.Context, key asset.Key) error {
	result, err := h.deps.Queries.ReplaceAvatar(ctx, db.ReplaceAvatarParams{
		OriginalKey:  key.OriginalKey(),
		ProcessedKey: key.Raw,
	}, h.deps.Storage.Delete)
	if err != nil {
		return rowError(err, "replace avatar")
	}

	metrics.RecordTransition(string(asset.KindAvatar), string(asset.StateProcessed))
	logger.FromContext(ctx).Info("avatar processed", "replaced", len(result.Replaced))
	return nil
}

func labelNames(labels []moderation.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return names
}

// audioFileName gives the transcriber a name whose extension matches the
// uploaded content, since originals are stored without one.
func audioFileName(key asset.Key, contentType string) string {
	name := path.Base(key.Raw)
	if path.Ext(name) != "" {
		return name
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return name + ".mp3"
	}
	if ext, ok := audioExtensions[strings.ToLower(mediaType)]; ok {
		return name + ext
	}
	return name + ".mp3"
}

var audioExtensions = map[string]string{
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/mp4":    ".m4a",
	"audio/x-m4a":  ".m4a",
	"audio/aac":    ".m4a",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/webm":   ".webm",
	"audio/ogg":    ".ogg",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
}
