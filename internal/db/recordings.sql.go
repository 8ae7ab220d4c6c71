package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const setRecordingThumbnail = `-- name: SetRecordingThumbnail :one
UPDATE recordings
SET thumbnail_key = $2,
    updated_at = NOW()
WHERE original_key = $1
RETURNING ` + assetColumns

type SetRecordingThumbnailParams struct {
	OriginalKey  string `json:"original_key"`
	ThumbnailKey string `json:"thumbnail_key"`
}

// SetRecordingThumbnail never touches state; the thumbnail may land before or
// after the primary output.
func (q *Queries) SetRecordingThumbnail(ctx context.Context, arg SetRecordingThumbnailParams) (Asset, error) {
	row := q.db.QueryRow(ctx, setRecordingThumbnail, arg.OriginalKey, arg.ThumbnailKey)
	i, err := scanAsset(row)
	return i, notFound(err)
}

const getRecording = `-- name: GetRecording :one
SELECT ` + assetColumns + `, thumbnail_key, title, skill_level, game_id
FROM recordings
WHERE id = $1`

func (q *Queries) GetRecording(ctx context.Context, id pgtype.UUID) (Recording, error) {
	row := q.db.QueryRow(ctx, getRecording, id)
	var i Recording
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.OriginalKey,
		&i.ProcessedKey,
		&i.State,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.ThumbnailKey,
		&i.Title,
		&i.SkillLevel,
		&i.GameID,
	)
	return i, notFound(err)
}

const deleteRecordingIfCreated = `-- name: DeleteRecordingIfCreated :execrows
DELETE FROM recordings
WHERE id = $1 AND state = 'created'`

func (q *Queries) DeleteRecordingIfCreated(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteRecordingIfCreated, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listAbandonedRecordings = `-- name: ListAbandonedRecordings :many
SELECT id FROM recordings
WHERE state = 'created' AND created_at < $1
ORDER BY created_at
LIMIT $2`

type ListAbandonedRecordingsParams struct {
	CreatedBefore pgtype.Timestamptz `json:"created_before"`
	Limit         int32              `json:"limit"`
}

func (q *Queries) ListAbandonedRecordings(ctx context.Context, arg ListAbandonedRecordingsParams) ([]pgtype.UUID, error) {
	rows, err := q.db.Query(ctx, listAbandonedRecordings, arg.CreatedBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []pgtype.UUID{}
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
