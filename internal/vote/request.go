package vote

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"artvote/internal/config"
	"artvote/internal/models"
	"artvote/internal/signature"
)

const maxArtworkIDLen = 512

// Request is the vote submission body.
type Request struct {
	WalletAddress string `json:"wallet_address"`
	ArtworkID     string `json:"artwork_id"`
	Signature     string `json:"signature"`
	Message       string `json:"message,omitempty"`
	VoteValue     *int   `json:"vote_value,omitempty"`
}

// Validate checks the request shape for the given message mode and returns
// every violated constraint, not just the first.
func (r Request) Validate(messageMode string) []string {
	var problems []string

	if strings.TrimSpace(r.WalletAddress) == "" {
		problems = append(problems, "wallet_address is required")
	} else if _, err := signature.DecodeWallet(r.WalletAddress); err != nil {
		problems = append(problems, "wallet_address must be a base-58 encoded 32-byte public key")
	}

	if strings.TrimSpace(r.ArtworkID) == "" {
		problems = append(problems, "artwork_id is required")
	} else if len(r.ArtworkID) > maxArtworkIDLen {
		problems = append(problems, "artwork_id must be at most 512 bytes")
	} else if !utf8.ValidString(r.ArtworkID) || strings.ContainsRune(r.ArtworkID, 0) {
		problems = append(problems, "artwork_id must be valid UTF-8 without NUL characters")
	}

	if strings.TrimSpace(r.Signature) == "" {
		problems = append(problems, "signature is required")
	} else if _, err := signature.DecodeSignature(r.Signature); err != nil {
		problems = append(problems, "signature must be a base-58 encoded 64-byte signature")
	}

	switch messageMode {
	case config.MessageModeCanonical:
		if r.Message != "" {
			problems = append(problems, "message must not be supplied, the server derives it from artwork_id")
		}
	default:
		if r.Message == "" {
			problems = append(problems, "message is required")
		}
	}

	if r.VoteValue != nil {
		switch v := *r.VoteValue; {
		case v < 1:
			problems = append(problems, "vote_value must be a positive integer")
		case v > models.MaxVoteValue:
			problems = append(problems, fmt.Sprintf("vote_value must be at most %d", models.MaxVoteValue))
		}
	}

	return problems
}

// CanonicalMessage renders the server-side vote message for artwork.
func CanonicalMessage(template, artworkID string) string {
	return strings.ReplaceAll(template, "{artwork_id}", artworkID)
}

func isDecodeError(err error) bool {
	return errors.Is(err, signature.ErrInvalidWallet) || errors.Is(err, signature.ErrInvalidSignature)
}
