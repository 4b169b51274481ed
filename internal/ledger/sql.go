package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"artvote/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore is the GORM engine, used with PostgreSQL and SQLite.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps an open, migrated GORM handle. The caller keeps
// ownership of the connection pool.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) HasVoted(ctx context.Context, wallet, artwork string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.VoteRecord{}).
		Where("wallet_address = ? AND artwork_id = ?", wallet, artwork).
		Limit(1).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) RecordVote(ctx context.Context, rec models.VoteRecord) (models.VoteRecord, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.VoteRecord{}).
			Where("wallet_address = ? AND artwork_id = ?", rec.WalletAddress, rec.ArtworkID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateVote
		}
		return insertVote(tx, &rec)
	})
	if err != nil {
		return models.VoteRecord{}, err
	}
	return rec, nil
}

// insertVote relies on ux_votes_wallet_artwork to reject a pair that a
// concurrent writer committed after our existence check.
func insertVote(tx *gorm.DB, rec *models.VoteRecord) error {
	if err := tx.Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateVote
		}
		return err
	}
	return nil
}

func (s *SQLStore) IncrementVote(ctx context.Context, artwork string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	now := time.Now().UTC()
	var row models.VoteTally
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "artwork_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total":      gorm.Expr(s.totalColumn()+" + ?", amount),
				"updated_at": now,
			}),
			// an existing row that cannot take amount is left untouched
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr(s.totalColumn()+" <= ?", int64(math.MaxInt64)-amount),
			}},
		}).Create(&models.VoteTally{
			ArtworkID: artwork,
			Total:     amount,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if upsert.Error != nil {
			return upsert.Error
		}
		if upsert.RowsAffected == 0 {
			return ErrTallyOverflow
		}
		// The upsert holds the row lock until commit, so this read sees our write
		return tx.Where("artwork_id = ?", artwork).First(&row).Error
	})
	if err != nil {
		return 0, err
	}
	return row.Total, nil
}

// totalColumn qualifies the existing-row column where the dialect requires it
func (s *SQLStore) totalColumn() string {
	if s.db.Dialector.Name() == "postgres" {
		return "vote_tallies.total"
	}
	return "total"
}

func (s *SQLStore) VoteCount(ctx context.Context, artwork string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.VoteRecord{}).
		Where("artwork_id = ?", artwork).
		Select("COALESCE(SUM(vote_value), 0)").
		Scan(&total).
		Error
	return total, err
}

func (s *SQLStore) VoteCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		ArtworkID string
		Total     int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.VoteRecord{}).
		Select("artwork_id, SUM(vote_value) AS total").
		Group("artwork_id").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	ret := make(map[string]int64, len(rows))
	for _, r := range rows {
		ret[r.ArtworkID] = r.Total
	}
	return ret, nil
}

func (s *SQLStore) TallyTotal(ctx context.Context, artwork string) (int64, error) {
	var row models.VoteTally
	err := s.db.WithContext(ctx).Where("artwork_id = ?", artwork).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Total, nil
}

func (s *SQLStore) TallyTotals(ctx context.Context) (map[string]int64, error) {
	var rows []models.VoteTally
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	ret := make(map[string]int64, len(rows))
	for _, r := range rows {
		ret[r.ArtworkID] = r.Total
	}
	return ret, nil
}

// Close is a no-op; the pool belongs to whoever opened it.
func (s *SQLStore) Close() error {
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLStore)(nil)
