package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

const assetColumns = `id, owner_id, original_key, processed_key, state, created_at, updated_at`

func scanAsset(row interface{ Scan(...any) error }) (Asset, error) {
	var i Asset
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.OriginalKey,
		&i.ProcessedKey,
		&i.State,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func validTable(t AssetTable) error {
	switch t {
	case TableAvatars, TableRecordings, TableAudios:
		return nil
	}
	return fmt.Errorf("db: unknown asset table %q", t)
}

const markUploaded = `-- name: MarkUploaded :one
UPDATE %s
SET state = CASE WHEN state = 'created' THEN 'uploaded'::asset_state ELSE state END,
    updated_at = NOW()
WHERE original_key = $1
RETURNING ` + assetColumns

// MarkUploaded moves a created row to uploaded and returns the row as it now
// stands. Rows already uploaded or processed are returned unchanged.
func (q *Queries) MarkUploaded(ctx context.Context, table AssetTable, originalKey string) (Asset, error) {
	if err := validTable(table); err != nil {
		return Asset{}, err
	}
	row := q.db.QueryRow(ctx, fmt.Sprintf(markUploaded, table), originalKey)
	i, err := scanAsset(row)
	return i, notFound(err)
}

const markProcessed = `-- name: MarkProcessed :one
WITH updated AS (
    UPDATE %[1]s
    SET processed_key = $2,
        state = 'processed',
        updated_at = NOW()
    WHERE original_key = $1
      AND (processed_key IS DISTINCT FROM $2 OR state <> 'processed')
    RETURNING ` + assetColumns + `
)
SELECT ` + assetColumns + `, true AS changed FROM updated
UNION ALL
SELECT ` + assetColumns + `, false AS changed FROM %[1]s
WHERE original_key = $1 AND NOT EXISTS (SELECT 1 FROM updated)`

type MarkProcessedParams struct {
	Table        AssetTable `json:"table"`
	OriginalKey  string     `json:"original_key"`
	ProcessedKey string     `json:"processed_key"`
}

type MarkProcessedRow struct {
	Asset
	// Changed is false when the row was already processed with this key.
	Changed bool `json:"changed"`
}

// MarkProcessed records the processed key and moves the row to processed. A
// repeat with the same key leaves the row, and its updated_at, untouched.
func (q *Queries) MarkProcessed(ctx context.Context, arg MarkProcessedParams) (MarkProcessedRow, error) {
	if err := validTable(arg.Table); err != nil {
		return MarkProcessedRow{}, err
	}
	row := q.db.QueryRow(ctx, fmt.Sprintf(markProcessed, arg.Table), arg.OriginalKey, arg.ProcessedKey)
	var i MarkProcessedRow
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.OriginalKey,
		&i.ProcessedKey,
		&i.State,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.Changed,
	)
	return i, notFound(err)
}

const listStuckAssets = `-- name: ListStuckAssets :many
SELECT 'avatars' AS tbl, id, original_key, state, updated_at FROM avatars
WHERE state = 'uploaded' AND updated_at < $1
UNION ALL
SELECT 'recordings', id, original_key, state, updated_at FROM recordings
WHERE state = 'uploaded' AND updated_at < $1
UNION ALL
SELECT 'audios', id, original_key, state, updated_at FROM audios
WHERE state = 'uploaded' AND updated_at < $1
ORDER BY updated_at
LIMIT $2`

type ListStuckAssetsParams struct {
	UpdatedBefore pgtype.Timestamptz `json:"updated_before"`
	Limit         int32              `json:"limit"`
}

func (q *Queries) ListStuckAssets(ctx context.Context, arg ListStuckAssetsParams) ([]StuckAsset, error) {
	rows, err := q.db.Query(ctx, listStuckAssets, arg.UpdatedBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StuckAsset{}
	for rows.Next() {
		var i StuckAsset
		var table string
		if err := rows.Scan(
			&table,
			&i.ID,
			&i.OriginalKey,
			&i.State,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		i.Table = AssetTable(table)
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
