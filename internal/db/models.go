package db

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

type AssetState string

const (
	AssetStateCreated   AssetState = "created"
	AssetStateUploaded  AssetState = "uploaded"
	AssetStateProcessed AssetState = "processed"
)

func (e *AssetState) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = AssetState(s)
	case string:
		*e = AssetState(s)
	default:
		return fmt.Errorf("unsupported scan type for AssetState: %T", src)
	}
	return nil
}

type AssetTable string

const (
	TableAvatars    AssetTable = "avatars"
	TableRecordings AssetTable = "recordings"
	TableAudios     AssetTable = "audios"
)

// Asset is the columns shared by avatars, recordings and audios.
type Asset struct {
	ID           pgtype.UUID        `json:"id"`
	OwnerID      pgtype.UUID        `json:"owner_id"`
	OriginalKey  string             `json:"original_key"`
	ProcessedKey *string            `json:"processed_key"`
	State        AssetState         `json:"state"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
	UpdatedAt    pgtype.Timestamptz `json:"updated_at"`
}

type Avatar struct {
	Asset
}

type Recording struct {
	Asset
	ThumbnailKey *string `json:"thumbnail_key"`
	Title        string  `json:"title"`
	SkillLevel   *string `json:"skill_level"`
	GameID       *string `json:"game_id"`
}

type Audio struct {
	Asset
	Transcript *string `json:"transcript"`
}

type Coach struct {
	ID               pgtype.UUID        `json:"id"`
	StripeAccountID  *string            `json:"stripe_account_id"`
	PayoutsEnabled   bool               `json:"payouts_enabled"`
	DetailsSubmitted bool               `json:"details_submitted"`
	UpdatedAt        pgtype.Timestamptz `json:"updated_at"`
}

type StuckAsset struct {
	Table       AssetTable         `json:"table"`
	ID          pgtype.UUID        `json:"id"`
	OriginalKey string             `json:"original_key"`
	State       AssetState         `json:"state"`
	UpdatedAt   pgtype.Timestamptz `json:"updated_at"`
}
