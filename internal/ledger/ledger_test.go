package ledger

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"artvote/internal/db"
	"artvote/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// engines returns a fresh instance of every storage engine.
func engines(t *testing.T) map[string]Store {
	t.Helper()

	gdb, err := db.OpenSqlite(filepath.Join(t.TempDir(), "votes.sqlite"), nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	bs, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]Store{
		"sqlite": NewSQLStore(gdb),
		"badger": bs,
	}
}

func record(wallet, artwork string) models.VoteRecord {
	return models.VoteRecord{
		ID:            fmt.Sprintf("%s-%s", wallet, artwork),
		WalletAddress: wallet,
		ArtworkID:     artwork,
		VoteValue:     models.DefaultVoteValue,
		CreatedAt:     time.Date(2026, 10, 19, 12, 30, 15, 123456000, time.UTC),
	}
}

func TestRecordVoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			want := record("W1", "https://cdn.example/art42.png")

			got, err := store.RecordVote(ctx, want)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			voted, err := store.HasVoted(ctx, "W1", want.ArtworkID)
			require.NoError(t, err)
			assert.True(t, voted)

			voted, err = store.HasVoted(ctx, "W2", want.ArtworkID)
			require.NoError(t, err)
			assert.False(t, voted)

			switch s := store.(type) {
			case *SQLStore:
				var stored models.VoteRecord
				require.NoError(t, s.db.First(&stored, "id = ?", want.ID).Error)
				assert.Equal(t, want.WalletAddress, stored.WalletAddress)
				assert.Equal(t, want.ArtworkID, stored.ArtworkID)
				assert.Equal(t, want.VoteValue, stored.VoteValue)
				assert.True(t, want.CreatedAt.Equal(stored.CreatedAt), "created_at %v != %v", stored.CreatedAt, want.CreatedAt)
			case *BadgerStore:
				stored, err := s.getVote(ctx, "W1", want.ArtworkID)
				require.NoError(t, err)
				assert.Equal(t, want, stored)
			}
		})
	}
}

func TestRecordVoteRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.RecordVote(ctx, record("W1", "art42"))
			require.NoError(t, err)

			dup := record("W1", "art42")
			dup.ID = "another-id"
			_, err = store.RecordVote(ctx, dup)
			require.ErrorIs(t, err, ErrDuplicateVote)

			_, err = store.RecordVote(ctx, record("W2", "art42"))
			require.NoError(t, err)

			count, err := store.VoteCount(ctx, "art42")
			require.NoError(t, err)
			assert.EqualValues(t, 2, count)
		})
	}
}

func TestRecordVoteConcurrentSamePair(t *testing.T) {
	const racers = 100
	ctx := context.Background()
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			var (
				wg        sync.WaitGroup
				successes atomic.Int64
				conflicts atomic.Int64
				start     = make(chan struct{})
			)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					rec := record("W1", "art7")
					rec.ID = fmt.Sprintf("racer-%d", i)
					_, err := store.RecordVote(ctx, rec)
					switch {
					case err == nil:
						successes.Add(1)
					case assert.ErrorIs(t, err, ErrDuplicateVote):
						conflicts.Add(1)
					}
				}(i)
			}
			close(start)
			wg.Wait()

			assert.EqualValues(t, 1, successes.Load())
			assert.EqualValues(t, racers-1, conflicts.Load())

			count, err := store.VoteCount(ctx, "art7")
			require.NoError(t, err)
			assert.EqualValues(t, 1, count)
		})
	}
}

func TestIncrementVoteConcurrent(t *testing.T) {
	// well above the badger commit retry budget
	const writers = 300
	ctx := context.Background()
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for j := 0; j < writers; j++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.IncrementVote(ctx, "art9", 1)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			total, err := store.TallyTotal(ctx, "art9")
			require.NoError(t, err)
			assert.EqualValues(t, writers, total)

			total, err = store.IncrementVote(ctx, "art9", 5)
			require.NoError(t, err)
			assert.EqualValues(t, writers+5, total)

			totals, err := store.TallyTotals(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]int64{"art9": writers + 5}, totals)
		})
	}
}

func TestIncrementVoteRejectsNonPositive(t *testing.T) {
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.IncrementVote(context.Background(), "art1", 0)
			require.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestIncrementVoteOverflow(t *testing.T) {
	ctx := context.Background()
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			total, err := store.IncrementVote(ctx, "art1", math.MaxInt64-1)
			require.NoError(t, err)
			assert.EqualValues(t, int64(math.MaxInt64-1), total)

			total, err = store.IncrementVote(ctx, "art1", 1)
			require.NoError(t, err)
			assert.EqualValues(t, int64(math.MaxInt64), total)

			_, err = store.IncrementVote(ctx, "art1", 1)
			require.ErrorIs(t, err, ErrTallyOverflow)

			total, err = store.TallyTotal(ctx, "art1")
			require.NoError(t, err)
			assert.EqualValues(t, int64(math.MaxInt64), total, "counter is unchanged after a rejected increment")
		})
	}
}

func TestInsertVoteMapsUniqueViolation(t *testing.T) {
	gdb, err := db.OpenSqlite(filepath.Join(t.TempDir(), "votes.sqlite"), nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	// a concurrent writer commits the pair after our existence check passed
	winner := record("W1", "art7")
	require.NoError(t, gdb.Create(&winner).Error)

	loser := record("W1", "art7")
	loser.ID = "racer-2"
	err = gdb.Transaction(func(tx *gorm.DB) error {
		return insertVote(tx, &loser)
	})
	require.ErrorIs(t, err, ErrDuplicateVote)

	var count int64
	require.NoError(t, gdb.Model(&models.VoteRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTallyStrategyRejectsOversizedValue(t *testing.T) {
	store, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	strat, err := NewStrategy(PolicyTally, store)
	require.NoError(t, err)
	_, err = strat.Cast(context.Background(), Ballot{ArtworkID: "art1", Value: models.MaxVoteValue + 1})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTotalsForUnknownArtwork(t *testing.T) {
	ctx := context.Background()
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			n, err := store.VoteCount(ctx, "nope")
			require.NoError(t, err)
			assert.Zero(t, n)

			n, err = store.TallyTotal(ctx, "nope")
			require.NoError(t, err)
			assert.Zero(t, n)

			counts, err := store.VoteCounts(ctx)
			require.NoError(t, err)
			assert.Empty(t, counts)
		})
	}
}

func TestSingleVoteStrategy(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			n := 0
			strat, err := NewStrategy(PolicySingle, store,
				WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
				WithClock(func() time.Time { return fixed }),
			)
			require.NoError(t, err)
			assert.Equal(t, PolicySingle, strat.Policy())

			out, err := strat.Cast(ctx, Ballot{WalletAddress: "W1", ArtworkID: "art42", Value: 3})
			require.NoError(t, err)
			require.NotNil(t, out.Record)
			assert.Equal(t, "id-1", out.Record.ID)
			assert.Equal(t, models.DefaultVoteValue, out.Record.VoteValue, "value is ignored by the single policy")
			assert.True(t, fixed.Equal(out.Record.CreatedAt))
			assert.EqualValues(t, 1, out.Total)

			_, err = strat.Cast(ctx, Ballot{WalletAddress: "W1", ArtworkID: "art42"})
			require.ErrorIs(t, err, ErrDuplicateVote)

			_, err = strat.Cast(ctx, Ballot{WalletAddress: "W2", ArtworkID: "art42"})
			require.NoError(t, err)

			totals, err := strat.Totals(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]int64{"art42": 2}, totals)
		})
	}
}

func TestTallyStrategyCountsRepeats(t *testing.T) {
	ctx := context.Background()
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			strat, err := NewStrategy(PolicyTally, store)
			require.NoError(t, err)

			out, err := strat.Cast(ctx, Ballot{WalletAddress: "W1", ArtworkID: "art42"})
			require.NoError(t, err)
			assert.Nil(t, out.Record)
			assert.EqualValues(t, 1, out.Total)

			// the tally policy keeps no per-wallet record, so a repeat counts again
			out, err = strat.Cast(ctx, Ballot{WalletAddress: "W1", ArtworkID: "art42", Value: 2})
			require.NoError(t, err)
			assert.EqualValues(t, 3, out.Total)

			total, err := strat.Total(ctx, "art42")
			require.NoError(t, err)
			assert.EqualValues(t, 3, total)
		})
	}
}

func TestNewStrategyUnknownPolicy(t *testing.T) {
	_, err := NewStrategy("ranked", nil)
	require.ErrorIs(t, err, ErrUnknownPolicy)
}
