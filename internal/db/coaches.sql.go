package db

import "context"

const updateCoachPayouts = `-- name: UpdateCoachPayouts :execrows
UPDATE coaches
SET payouts_enabled = $2,
    details_submitted = $3,
    updated_at = NOW()
WHERE stripe_account_id = $1`

type UpdateCoachPayoutsParams struct {
	StripeAccountID  string `json:"stripe_account_id"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

func (q *Queries) UpdateCoachPayouts(ctx context.Context, arg UpdateCoachPayoutsParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateCoachPayouts, arg.StripeAccountID, arg.PayoutsEnabled, arg.DetailsSubmitted)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
