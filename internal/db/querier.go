package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	MarkUploaded(ctx context.Context, table AssetTable, originalKey string) (Asset, error)
	MarkProcessed(ctx context.Context, arg MarkProcessedParams) (MarkProcessedRow, error)
	SetRecordingThumbnail(ctx context.Context, arg SetRecordingThumbnailParams) (Asset, error)
	SetAudioTranscript(ctx context.Context, arg SetAudioTranscriptParams) error
	ReplaceAvatar(ctx context.Context, arg ReplaceAvatarParams, deleteBlob BlobDeleter) (ReplaceAvatarResult, error)
	GetRecording(ctx context.Context, id pgtype.UUID) (Recording, error)
	DeleteRecordingIfCreated(ctx context.Context, id pgtype.UUID) (int64, error)
	ListAbandonedRecordings(ctx context.Context, arg ListAbandonedRecordingsParams) ([]pgtype.UUID, error)
	UpdateCoachPayouts(ctx context.Context, arg UpdateCoachPayoutsParams) (int64, error)
	ListStuckAssets(ctx context.Context, arg ListStuckAssetsParams) ([]StuckAsset, error)
}

var _ Querier = (*Queries)(nil)
