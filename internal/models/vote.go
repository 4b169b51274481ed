// Package models defines the database models for the vote ledger.
package models

import "time"

const (
	// DefaultVoteValue is the weight of a vote when the caller does not supply one.
	DefaultVoteValue = 1
	// MaxVoteValue caps a single tally increment.
	MaxVoteValue = 1_000_000
)

// VoteRecord stores one accepted vote of a wallet for an artwork.
// The composite unique index is the source of truth for "already voted".
type VoteRecord struct {
	ID            string    `gorm:"primaryKey;size:36"                           json:"id"`
	WalletAddress string    `gorm:"size:64;not null;index:ux_votes_wallet_artwork,unique" json:"wallet_address"`
	ArtworkID     string    `gorm:"size:512;not null;index:ux_votes_wallet_artwork,unique;index" json:"artwork_id"`
	VoteValue     int       `gorm:"not null;default:1"                           json:"vote_value"`
	CreatedAt     time.Time `gorm:"not null"                                     json:"created_at"`
}

// TableName keeps the table name stable regardless of the struct name.
func (VoteRecord) TableName() string {
	return "votes"
}
