package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// BlobDeleter removes an object from storage. It must treat a missing object
// as success.
type BlobDeleter func(ctx context.Context, key string) error

const lockAvatarByOriginalKey = `-- name: LockAvatarByOriginalKey :one
SELECT ` + assetColumns + `
FROM avatars
WHERE original_key = $1
FOR UPDATE`

const listPriorAvatarsForUpdate = `-- name: ListPriorAvatarsForUpdate :many
SELECT ` + assetColumns + `
FROM avatars
WHERE owner_id = $1 AND id <> $2 AND created_at < $3
ORDER BY created_at
FOR UPDATE`

const deleteAvatars = `-- name: DeleteAvatars :exec
DELETE FROM avatars WHERE id = ANY($1::uuid[])`

type ReplaceAvatarParams struct {
	OriginalKey  string `json:"original_key"`
	ProcessedKey string `json:"processed_key"`
}

type ReplaceAvatarResult struct {
	Avatar   Asset   `json:"avatar"`
	Replaced []Asset `json:"replaced"`
}

// ReplaceAvatar marks the avatar identified by OriginalKey as processed and, in
// the same transaction, removes every older avatar of the same owner along
// with its blobs. Blobs are deleted before commit, so a failed commit leaves
// rows whose blobs are already gone; a redelivery finishes the job.
func (q *Queries) ReplaceAvatar(ctx context.Context, arg ReplaceAvatarParams, deleteBlob BlobDeleter) (ReplaceAvatarResult, error) {
	var result ReplaceAvatarResult

	tx, err := q.db.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAsset(tx.QueryRow(ctx, lockAvatarByOriginalKey, arg.OriginalKey))
	if err != nil {
		return result, notFound(err)
	}

	rows, err := tx.Query(ctx, listPriorAvatarsForUpdate, current.OwnerID, current.ID, current.CreatedAt)
	if err != nil {
		return result, fmt.Errorf("list prior avatars: %w", err)
	}
	var prior []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			rows.Close()
			return result, fmt.Errorf("scan prior avatar: %w", err)
		}
		prior = append(prior, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("list prior avatars: %w", err)
	}

	if len(prior) > 0 {
		ids := make([]pgtype.UUID, 0, len(prior))
		for _, a := range prior {
			if err := deleteBlob(ctx, a.OriginalKey); err != nil {
				return result, fmt.Errorf("delete blob %s: %w", a.OriginalKey, err)
			}
			if a.ProcessedKey != nil && *a.ProcessedKey != "" {
				if err := deleteBlob(ctx, *a.ProcessedKey); err != nil {
					return result, fmt.Errorf("delete blob %s: %w", *a.ProcessedKey, err)
				}
			}
			ids = append(ids, a.ID)
		}
		if _, err := tx.Exec(ctx, deleteAvatars, ids); err != nil {
			return result, fmt.Errorf("delete prior avatars: %w", err)
		}
	}

	updated, err := q.WithTx(tx).MarkProcessed(ctx, MarkProcessedParams{
		Table:        TableAvatars,
		OriginalKey:  arg.OriginalKey,
		ProcessedKey: arg.ProcessedKey,
	})
	if err != nil {
		return result, fmt.Errorf("mark avatar processed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}

	result.Avatar = updated.Asset
	result.Replaced = prior
	return result, nil
}
