package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/apperror"
	"github.com/abdul-hamid-achik/vodcoach/internal/config"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/moderation"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/abdul-hamid-achik/vodcoach/internal/report"
	"github.com/abdul-hamid-achik/vodcoach/internal/transcode"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func moderationBody(t *testing.T, status, key string, wrapped bool) []byte {
	t.Helper()
	n := ModerationNotification{
		JobID:     "mod-job-1",
		Status:    status,
		API:       "StartContentModeration",
		Timestamp: 1700000000000,
	}
	n.Video.S3ObjectName = key
	n.Video.S3Bucket = testBucket
	inner, err := json.Marshal(n)
	require.NoError(t, err)
	if !wrapped {
		return inner
	}
	outer, err := json.Marshal(map[string]string{"Type": "Notification", "Message": string(inner)})
	require.NoError(t, err)
	return outer
}

func TestDecodeModerationNotification(t *testing.T) {
	for _, wrapped := range []bool{false, true} {
		n, err := DecodeModerationNotification(moderationBody(t, "SUCCEEDED", "recordings/originals/v", wrapped))
		require.NoError(t, err)
		assert.Equal(t, "mod-job-1", n.JobID)
		assert.Equal(t, "recordings/originals/v", n.Video.S3ObjectName)
	}

	_, err := DecodeModerationNotification([]byte(`{"Status":"SUCCEEDED"}`))
	assert.True(t, apperror.Is(err, apperror.ErrMalformedBody))
}

func TestModeration_CleanVideoStartsTranscodeOnce(t *testing.T) {
	h := newHarness()
	key := "recordings/originals/vod"
	h.queries.AddAsset(db.TableRecordings, key, uuid.New(), db.AssetStateUploaded, time.Now())
	h.putBlob(key, "video/mp4")

	h.moderator.On("VideoLabels", mock.Anything, "mod-job-1").Return(nil, nil)
	h.transcoder.On("CreateJob", mock.Anything, mock.MatchedBy(func(p transcode.Profile) bool {
		return p.Input == "s3://media/"+key &&
			p.Destination == "s3://media/recordings/processed/vod" &&
			p.Token == moderation.RequestToken(key) &&
			p.UserMetadata[transcode.MetadataOriginalKey] == key &&
			p.UserMetadata[transcode.MetadataInstanceID] == testInstance
	})).Return("mc-job-1", nil).Once()

	handler := NewModerationHandler(h.deps)
	msg := queue.Message{ID: "m1", Body: moderationBody(t, "SUCCEEDED", key, true)}
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.NoError(t, handler.Handle(context.Background(), msg))

	h.transcoder.AssertNumberOfCalls(t, "CreateJob", 1)
	assert.True(t, h.hasBlob(key))
}

func TestModeration_LabelledVideoIsDeleted(t *testing.T) {
	h := newHarness()
	key := "recordings/originals/bad"
	h.queries.AddAsset(db.TableRecordings, key, uuid.New(), db.AssetStateUploaded, time.Now())
	h.putBlob(key, "video/mp4")

	h.moderator.On("VideoLabels", mock.Anything, "mod-job-1").Return([]moderation.Label{{Name: "Violence", TimestampMS: 4000}}, nil)

	msg := queue.Message{ID: "m1", Body: moderationBody(t, "SUCCEEDED", key, false)}
	require.NoError(t, NewModerationHandler(h.deps).Handle(context.Background(), msg))

	assert.False(t, h.hasBlob(key))
	assert.Equal(t, 1, h.reporter.EventCount("asset_rejected"))
	h.transcoder.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
}

func TestModeration_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		state    db.AssetState
		addRow   bool
		wantErr  *apperror.Error
		wantKind apperror.Kind
	}{
		{name: "failed job", status: "FAILED", addRow: true, state: db.AssetStateUploaded, wantErr: apperror.ErrJobFailed, wantKind: apperror.KindFatal},
		{name: "missing row", status: "SUCCEEDED", wantErr: apperror.ErrRowNotFound, wantKind: apperror.KindIgnorable},
		{name: "already processed", status: "SUCCEEDED", addRow: true, state: db.AssetStateProcessed},
		{name: "state outside lifecycle", status: "SUCCEEDED", addRow: true, state: db.AssetState("archived"), wantErr: apperror.Fatal(nil), wantKind: apperror.KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			key := "recordings/originals/r"
			if tt.addRow {
				h.queries.AddAsset(db.TableRecordings, key, uuid.New(), tt.state, time.Now())
			}

			err := NewModerationHandler(h.deps).Handle(context.Background(), queue.Message{Body: moderationBody(t, tt.status, key, true)})
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, apperror.Is(err, tt.wantErr))
				assert.Equal(t, tt.wantKind, apperror.KindOf(err))
			}
			h.moderator.AssertNotCalled(t, "VideoLabels", mock.Anything, mock.Anything)
			h.transcoder.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
		})
	}
}

func TestModeration_Target(t *testing.T) {
	h := newHarness()
	h.store.Put("recordings/originals/x", "video/mp4", nil, map[string]string{"instance-id": "i-9"})

	got, err := NewModerationHandler(h.deps).Target(context.Background(), moderationBody(t, "SUCCEEDED", "recordings/originals/x", true))
	require.NoError(t, err)
	assert.Equal(t, "i-9", got)
}

func transcodeBody(t *testing.T, status string, md map[string]string) []byte {
	t.Helper()
	var e TranscodeEvent
	e.DetailType = "MediaConvert Job State Change"
	e.Source = "aws.mediaconvert"
	e.Detail.Status = status
	e.Detail.JobID = "mc-1"
	e.Detail.UserMetadata = md
	if status == TranscodeError {
		e.Detail.ErrorCode = 1010
		e.Detail.ErrorMessage = "unsupported codec"
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return data
}

func TestTranscodeStatus_ErrorIsReportedAndAcknowledged(t *testing.T) {
	h := newHarness()
	md := map[string]string{transcode.MetadataOriginalKey: "recordings/originals/v"}

	handler := NewTranscodeStatusHandler(h.deps)
	require.NoError(t, handler.Handle(context.Background(), queue.Message{Body: transcodeBody(t, TranscodeError, md)}))
	require.Equal(t, 1, h.reporter.ErrorCount())
	assert.True(t, apperror.Is(h.reporter.Errors[0], apperror.ErrJobFailed))

	require.NoError(t, handler.Handle(context.Background(), queue.Message{Body: transcodeBody(t, TranscodeComplete, md)}))
	require.NoError(t, handler.Handle(context.Background(), queue.Message{Body: transcodeBody(t, TranscodeProgressing, md)}))
	assert.Equal(t, 1, h.reporter.ErrorCount())
}

func TestTranscodeStatus_Target(t *testing.T) {
	h := newHarness()
	h.store.Put("recordings/originals/v", "video/mp4", nil, map[string]string{"instance-id": "i-meta"})
	handler := NewTranscodeStatusHandler(h.deps)

	tests := []struct {
		name string
		md   map[string]string
		want string
	}{
		{name: "instance in job metadata", md: map[string]string{transcode.MetadataInstanceID: "i-job", transcode.MetadataOriginalKey: "recordings/originals/v"}, want: "i-job"},
		{name: "falls back to object metadata", md: map[string]string{transcode.MetadataOriginalKey: "recordings/originals/v"}, want: "i-meta"},
		{name: "no metadata", md: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := handler.Target(context.Background(), transcodeBody(t, TranscodeComplete, tt.md))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func scheduledMessage(t *testing.T, task ScheduledTask) queue.Message {
	t.Helper()
	data, err := json.Marshal(task)
	require.NoError(t, err)
	return queue.Message{ID: "s1", Body: data}
}

func TestScheduled_ExpiresAbandonedRecording(t *testing.T) {
	h := newHarness()
	key := "recordings/originals/abandoned"
	row := h.queries.AddAsset(db.TableRecordings, key, uuid.New(), db.AssetStateCreated, time.Now())
	h.putBlob(key, "video/mp4")

	task := NewScheduledTask(uuid.UUID(row.ID.Bytes), testInstance)
	require.NoError(t, NewScheduledHandler(h.deps).Handle(context.Background(), scheduledMessage(t, task)))

	_, ok := h.queries.Get(key)
	assert.False(t, ok)
	assert.False(t, h.hasBlob(key))
}

func TestScheduled_NoOps(t *testing.T) {
	h := newHarness()
	key := "recordings/originals/kept"
	row := h.queries.AddAsset(db.TableRecordings, key, uuid.New(), db.AssetStateUploaded, time.Now())
	h.putBlob(key, "video/mp4")

	handler := NewScheduledHandler(h.deps)
	require.NoError(t, handler.Handle(context.Background(), scheduledMessage(t, NewScheduledTask(uuid.UUID(row.ID.Bytes), ""))))
	require.NoError(t, handler.Handle(context.Background(), scheduledMessage(t, NewScheduledTask(uuid.New(), ""))))

	_, ok := h.queries.Get(key)
	assert.True(t, ok)
	assert.True(t, h.hasBlob(key))
}

func TestScheduled_BlobFailureKeepsRowForRedelivery(t *testing.T) {
	h := newHarness()
	key := "recordings/originals/stubborn"
	row := h.queries.AddAsset(db.TableRecordings, key, uuid.New(), db.AssetStateCreated, time.Now())
	h.putBlob(key, "video/mp4")
	h.store.FailOn(key, errors.New("SlowDown"))

	handler := NewScheduledHandler(h.deps)
	msg := scheduledMessage(t, NewScheduledTask(uuid.UUID(row.ID.Bytes), testInstance))

	err := handler.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, apperror.KindTransport, apperror.KindOf(err))
	_, ok := h.queries.Get(key)
	assert.True(t, ok, "row must survive so the redelivery can find the key")
	assert.True(t, h.hasBlob(key))

	h.store.FailOn(key, nil)
	require.NoError(t, handler.Handle(context.Background(), msg))
	_, ok = h.queries.Get(key)
	assert.False(t, ok)
	assert.False(t, h.hasBlob(key))
}

func TestScheduled_UnknownStateIsFatal(t *testing.T) {
	h := newHarness()
	key := "recordings/originals/odd"
	row := h.queries.AddAsset(db.TableRecordings, key, uuid.New(), db.AssetState("archived"), time.Now())
	h.putBlob(key, "video/mp4")

	err := NewScheduledHandler(h.deps).Handle(context.Background(), scheduledMessage(t, NewScheduledTask(uuid.UUID(row.ID.Bytes), "")))
	require.Error(t, err)
	assert.Equal(t, apperror.KindFatal, apperror.KindOf(err))
	assert.True(t, h.hasBlob(key))
}

func TestScheduled_InvalidIDIsFatal(t *testing.T) {
	h := newHarness()
	err := NewScheduledHandler(h.deps).Handle(context.Background(), scheduledMessage(t, ScheduledTask{RecordingID: "not-a-uuid"}))
	require.Error(t, err)
	assert.Equal(t, apperror.KindFatal, apperror.KindOf(err))
}

func TestScheduled_Target(t *testing.T) {
	h := newHarness()
	handler := NewScheduledHandler(h.deps)

	got, err := handler.Target(context.Background(), scheduledMessage(t, NewScheduledTask(uuid.New(), "i-7")).Body)
	require.NoError(t, err)
	assert.Equal(t, "i-7", got)

	got, err = handler.Target(context.Background(), []byte(`{"recordingId":"x","instanceId":null}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTable(t *testing.T) {
	h := newHarness()
	table := NewTable(h.deps)

	assert.ElementsMatch(t, config.QueueNames, table.Names())
	for _, name := range config.QueueNames {
		handler, err := table.Handler(name)
		require.NoError(t, err)
		assert.NotEmpty(t, handler.Name())
	}

	_, err := table.Handler("emails")
	assert.Error(t, err)
}

func TestLedgerKeys(t *testing.T) {
	tests := []struct {
		key  string
		want []string
	}{
		{"avatars/originals/abc", []string{"avatar:avatars/originals/abc"}},
		{"avatars/processed/abc_512.png", []string{"avatar:avatars/originals/abc"}},
		{"recordings/originals/vod", []string{"moderation:recordings/originals/vod", "transcode:recordings/originals/vod"}},
		{"audios/originals/clip", nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, LedgerKeys(mustKey(t, tt.key)))
		})
	}
}

// Messages targeted at another instance are skipped and stay consumable; the
// owning instance then handles them.
func TestPoller_UploadAffinity(t *testing.T) {
	h := newHarness()
	key := "recordings/processed/vod_720p.mp4"
	original := "recordings/originals/vod"
	h.queries.AddAsset(db.TableRecordings, original, uuid.New(), db.AssetStateUploaded, time.Now())
	h.store.Put(original, "video/mp4", nil, map[string]string{"instance-id": "i-other"})

	transport := queue.NewMemoryTransport("uploads", time.Minute)
	require.NoError(t, transport.Send(context.Background(), s3Body(key), nil))

	cfg := queue.DefaultConfig("uploads")
	rec := &report.Recorder{}
	local := queue.NewPoller(cfg, transport, NewUploadHandler(h.deps), h.filter, rec)

	res, err := local.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	row, _ := h.queries.Get(original)
	assert.Equal(t, db.AssetStateUploaded, row.asset.State)

	otherDeps := *h.deps
	otherDeps.Instance = "i-other"
	other := queue.NewPoller(cfg, transport, NewUploadHandler(&otherDeps), ownerFunc(func(target string) bool {
		return target == "" || target == "i-other"
	}), rec)

	res, err = other.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Acked)
	row, _ = h.queries.Get(original)
	assert.Equal(t, db.AssetStateProcessed, row.asset.State)
	assert.Zero(t, rec.ErrorCount())
}

func TestPoller_IgnorableDeletedOutsideProduction(t *testing.T) {
	for _, production := range []bool{false, true} {
		h := newHarness()
		h.putBlob("avatars/originals/nobody", "image/png")

		transport := queue.NewMemoryTransport("uploads", time.Minute)
		require.NoError(t, transport.Send(context.Background(), s3Body("avatars/originals/nobody"), nil))

		cfg := queue.DefaultConfig("uploads")
		cfg.Production = production
		rec := &report.Recorder{}
		p := queue.NewPoller(cfg, transport, NewUploadHandler(h.deps), h.filter, rec)

		res, err := p.PollOnce(context.Background())
		require.NoError(t, err)
		if production {
			assert.Equal(t, 1, res.Retained)
			assert.Equal(t, 1, rec.ErrorCount())
		} else {
			assert.Equal(t, 1, res.Swallowed)
			assert.Zero(t, rec.ErrorCount())
		}
	}
}

type ownerFunc func(string) bool

func (f ownerFunc) Owns(target string) bool { return f(target) }
