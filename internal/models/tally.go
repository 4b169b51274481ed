package models

import "time"

// VoteTally is the aggregate counter per artwork used by the tally policy.
// No per-wallet data is retained.
type VoteTally struct {
	ArtworkID string `gorm:"primaryKey;size:512"`
	Total     int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (VoteTally) TableName() string {
	return "vote_tallies"
}

// MigrateModels lists every model managed by AutoMigrate.
var MigrateModels = []any{
	&VoteRecord{},
	&VoteTally{},
}
