package vote

import (
	"context"
	"errors"
	"sync"

	"artvote/internal/ledger"
	"artvote/internal/models"
)

// memStore is a ledger.Store kept in memory for service tests. The mutex
// plays the part of the storage-level unique constraint.
type memStore struct {
	mu      sync.Mutex
	votes   map[[2]string]models.VoteRecord
	tallies map[string]int64

	// hideVotes makes HasVoted miss, simulating a racer that loses only at insert time
	hideVotes bool
	failWith  error
	writes    int
}

func newMemStore() *memStore {
	return &memStore{
		votes:   make(map[[2]string]models.VoteRecord),
		tallies: make(map[string]int64),
	}
}

func (m *memStore) HasVoted(_ context.Context, wallet, artwork string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	if m.hideVotes {
		return false, nil
	}
	_, ok := m.votes[[2]string{wallet, artwork}]
	return ok, nil
}

func (m *memStore) RecordVote(_ context.Context, rec models.VoteRecord) (models.VoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return models.VoteRecord{}, m.failWith
	}
	key := [2]string{rec.WalletAddress, rec.ArtworkID}
	if _, ok := m.votes[key]; ok {
		return models.VoteRecord{}, ledger.ErrDuplicateVote
	}
	m.votes[key] = rec
	m.writes++
	return rec, nil
}

func (m *memStore) IncrementVote(_ context.Context, artwork string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	m.tallies[artwork] += amount
	m.writes++
	return m.tallies[artwork], nil
}

func (m *memStore) VoteCount(ctx context.Context, artwork string) (int64, error) {
	counts, err := m.VoteCounts(ctx)
	return counts[artwork], err
}

func (m *memStore) VoteCounts(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	ret := make(map[string]int64)
	for k, v := range m.votes {
		ret[k[1]] += int64(v.VoteValue)
	}
	return ret, nil
}

func (m *memStore) TallyTotal(_ context.Context, artwork string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tallies[artwork], m.failWith
}

func (m *memStore) TallyTotals(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make(map[string]int64, len(m.tallies))
	for k, v := range m.tallies {
		ret[k] = v
	}
	return ret, m.failWith
}

func (m *memStore) Close() error { return nil }

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

var errDriver = errors.New(`pq: duplicate key value violates unique constraint "ux_votes_wallet_artwork" on connection 10.0.0.7`)

var _ ledger.Store = (*memStore)(nil)
