// Package ledger persists votes. A Store is a storage engine; a Strategy
// applies one of the duplicate-vote policies on top of a Store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artvote/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateVote means the wallet already has a vote for the artwork,
	// whether caught by the existence check or by the unique constraint.
	ErrDuplicateVote = errors.New("duplicate vote")
	ErrInvalidAmount = errors.New("increment amount must be positive")
	// ErrTallyOverflow means the increment would exceed the counter range.
	// The counter is left unchanged.
	ErrTallyOverflow = errors.New("tally counter overflow")
	ErrUnknownPolicy = errors.New("unknown vote policy")
)

// Policy names a duplicate-vote strategy.
type Policy string

const (
	// PolicySingle keeps one record per (wallet, artwork) and rejects repeats.
	PolicySingle Policy = "single"
	// PolicyTally keeps one counter per artwork. A wallet voting twice counts twice.
	PolicyTally Policy = "tally"
)

// Store is the storage engine contract shared by the SQL and Badger engines.
type Store interface {
	HasVoted(ctx context.Context, wallet, artwork string) (bool, error)
	// RecordVote inserts rec atomically with respect to the (wallet, artwork)
	// uniqueness invariant. Exactly one of several racing inserts succeeds;
	// the others return ErrDuplicateVote.
	RecordVote(ctx context.Context, rec models.VoteRecord) (models.VoteRecord, error)
	// IncrementVote creates the artwork counter at amount or adds amount to
	// it in one indivisible operation and returns the new total. An addition
	// that would overflow fails with ErrTallyOverflow.
	IncrementVote(ctx context.Context, artwork string, amount int64) (int64, error)
	VoteCount(ctx context.Context, artwork string) (int64, error)
	VoteCounts(ctx context.Context) (map[string]int64, error)
	TallyTotal(ctx context.Context, artwork string) (int64, error)
	TallyTotals(ctx context.Context) (map[string]int64, error)
	Close() error
}

// Ballot is an authenticated vote ready to be written.
type Ballot struct {
	WalletAddress string
	ArtworkID     string
	Value         int
}

// Outcome is the result of an accepted ballot. Record is set by the single
// policy; Total is the artwork's total after the write under both policies.
type Outcome struct {
	Record *models.VoteRecord
	Total  int64
}

// Strategy applies a duplicate-vote policy.
type Strategy interface {
	Policy() Policy
	Cast(ctx context.Context, b Ballot) (Outcome, error)
	Total(ctx context.Context, artwork string) (int64, error)
	Totals(ctx context.Context) (map[string]int64, error)
}

// StrategyOption configures a Strategy.
type StrategyOption func(*strategyOptions)

type strategyOptions struct {
	newID func() string
	now   func() time.Time
}

// WithIDGenerator overrides how vote record ids are generated.
func WithIDGenerator(fn func() string) StrategyOption {
	return func(o *strategyOptions) { o.newID = fn }
}

// WithClock overrides the clock used for created_at.
func WithClock(fn func() time.Time) StrategyOption {
	return func(o *strategyOptions) { o.now = fn }
}

// NewStrategy returns the strategy for policy backed by store.
func NewStrategy(policy Policy, store Store, opts ...StrategyOption) (Strategy, error) {
	o := strategyOptions{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	switch policy {
	case PolicySingle, "":
		return &singleVote{store: store, newID: o.newID, now: o.now}, nil
	case PolicyTally:
		return &tally{store: store}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

// singleVote is policy A: one record per (wallet, artwork).
type singleVote struct {
	store Store
	newID func() string
	now   func() time.Time
}

func (s *singleVote) Policy() Policy { return PolicySingle }

func (s *singleVote) Cast(ctx context.Context, b Ballot) (Outcome, error) {
	// Fast path only; RecordVote's unique constraint decides races.
	voted, err := s.store.HasVoted(ctx, b.WalletAddress, b.ArtworkID)
	if err != nil {
		return Outcome{}, err
	}
	if voted {
		return Outcome{}, ErrDuplicateVote
	}
	rec, err := s.store.RecordVote(ctx, models.VoteRecord{
		ID:            s.newID(),
		WalletAddress: b.WalletAddress,
		ArtworkID:     b.ArtworkID,
		VoteValue:     models.DefaultVoteValue,
		CreatedAt:     s.now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		return Outcome{}, err
	}
	total, err := s.store.VoteCount(ctx, b.ArtworkID)
	if err != nil {
		// vote is already committed, report the total as unknown
		total = -1
	}
	return Outcome{Record: &rec, Total: total}, nil
}

func (s *singleVote) Total(ctx context.Context, artwork string) (int64, error) {
	return s.store.VoteCount(ctx, artwork)
}

func (s *singleVote) Totals(ctx context.Context) (map[string]int64, error) {
	return s.store.VoteCounts(ctx)
}

// tally is policy B: one counter per artwork, incremented per accepted vote.
type tally struct {
	store Store
}

func (t *tally) Policy() Policy { return PolicyTally }

func (t *tally) Cast(ctx context.Context, b Ballot) (Outcome, error) {
	amount := int64(b.Value)
	if amount == 0 {
		amount = models.DefaultVoteValue
	}
	if amount > models.MaxVoteValue {
		return Outcome{}, ErrInvalidAmount
	}
	total, err := t.store.IncrementVote(ctx, b.ArtworkID, amount)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Total: total}, nil
}

func (t *tally) Total(ctx context.Context, artwork string) (int64, error) {
	return t.store.TallyTotal(ctx, artwork)
}

func (t *tally) Totals(ctx context.Context) (map[string]int64, error) {
	return t.store.TallyTotals(ctx)
}
