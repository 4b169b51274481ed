package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"artvote/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	votePrefix  = "vote/"
	tallyPrefix = "tally/"

	// maxCommitAttempts bounds retries of a transaction that lost a
	// serializable conflict to a writer outside the key locks.
	maxCommitAttempts = 64

	keyLockStripes = 256
)

// BadgerStore is the embedded key/value engine. Writers to the same key are
// serialized by a striped lock, so the read in RecordVote and the
// read-modify-write in IncrementVote never race each other. Badger's
// directory lock keeps the store to a single process, which makes the
// in-process lock sufficient. badger.ErrConflict is still retried.
type BadgerStore struct {
	db    *badger.DB
	locks [keyLockStripes]sync.Mutex
}

// OpenBadger opens (or creates) a store in dir. An empty dir opens an
// in-memory store, useful for testing.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithSyncWrites(true).
		WithCompression(options.Snappy)
	if dir == "" {
		opts = opts.WithInMemory(true).WithSyncWrites(false)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func voteKey(wallet, artwork string) []byte {
	// wallet addresses are base-58 and never contain '/'
	return []byte(votePrefix + wallet + "/" + artwork)
}

func tallyKey(artwork string) []byte {
	return []byte(tallyPrefix + artwork)
}

func (s *BadgerStore) HasVoted(ctx context.Context, wallet, artwork string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(voteKey(wallet, artwork))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (s *BadgerStore) RecordVote(ctx context.Context, rec models.VoteRecord) (models.VoteRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return models.VoteRecord{}, err
	}
	key := voteKey(rec.WalletAddress, rec.ArtworkID)
	err = s.update(ctx, key, func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrDuplicateVote
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return models.VoteRecord{}, err
	}
	return rec, nil
}

func (s *BadgerStore) IncrementVote(ctx context.Context, artwork string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var total int64
	key := tallyKey(artwork)
	err := s.update(ctx, key, func(txn *badger.Txn) error {
		current, err := readCounter(txn, key)
		if err != nil {
			return err
		}
		if current > math.MaxInt64-amount {
			return ErrTallyOverflow
		}
		total = current + amount
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(total))
		return txn.Set(key, buf)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *BadgerStore) lockFor(key []byte) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return &s.locks[h.Sum32()%keyLockStripes]
}

// update runs fn in a read-write transaction while holding the lock for key,
// retrying on serialization conflicts. Context cancellation is only honoured
// before the first attempt.
func (s *BadgerStore) update(ctx context.Context, key []byte, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	var err error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	return err
}

func readCounter(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt counter %q", key)
		}
		v = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return v, err
}

func (s *BadgerStore) VoteCount(ctx context.Context, artwork string) (int64, error) {
	counts, err := s.VoteCounts(ctx)
	if err != nil {
		return 0, err
	}
	return counts[artwork], nil
}

func (s *BadgerStore) VoteCounts(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := make(map[string]int64)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(votePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec models.VoteRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				ret[rec.ArtworkID] += int64(rec.VoteValue)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// getVote returns the stored record for (wallet, artwork).
func (s *BadgerStore) getVote(ctx context.Context, wallet, artwork string) (models.VoteRecord, error) {
	var rec models.VoteRecord
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(voteKey(wallet, artwork))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

func (s *BadgerStore) TallyTotal(ctx context.Context, artwork string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var total int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		total, err = readCounter(txn, tallyKey(artwork))
		return err
	})
	return total, err
}

func (s *BadgerStore) TallyTotals(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := make(map[string]int64)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tallyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			v, err := readCounter(txn, key)
			if err != nil {
				return err
			}
			ret[strings.TrimPrefix(string(key), tallyPrefix)] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
