package db

import "context"

const setAudioTranscript = `-- name: SetAudioTranscript :execrows
UPDATE audios
SET transcript = $2,
    updated_at = NOW()
WHERE original_key = $1`

type SetAudioTranscriptParams struct {
	OriginalKey string `json:"original_key"`
	Transcript  string `json:"transcript"`
}

func (q *Queries) SetAudioTranscript(ctx context.Context, arg SetAudioTranscriptParams) error {
	result, err := q.db.Exec(ctx, setAudioTranscript, arg.OriginalKey, arg.Transcript)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
