package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/store/schema"
)

type pgStore struct {
	db    *gorm.DB
	clock adapter.Clock
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB, clock adapter.Clock) Store {
	return &pgStore{db: db, clock: clock}
}

// now returns the current time at timestamptz precision so returned records match later reads
func (s *pgStore) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// Zero values fall back to the defaults of NormalizeConnectionPoolSettings.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns <= 0 {
		maxOpenConns = 20
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

func (s *pgStore) Create(ctx context.Context, input domain.CreateListingInput) (*domain.Listing, error) {
	nl, err := input.Validate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	row := schema.Listing{
		LoanToken:        string(nl.LoanToken),
		LoanAmount:       nl.LoanAmount,
		CollateralToken:  string(nl.CollateralToken),
		CollateralAmount: nl.CollateralAmount,
		APR:              nl.APR,
		TermDays:         nl.TermDays,
		Creator:          nl.Creator,
		TokenAddress:     nl.TokenAddress,
		Status:           string(domain.ListingStatusActive),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, &domain.StoreError{Op: "create listing", Err: err}
	}

	l := toDomain(row)
	return &l, nil
}

func (s *pgStore) GetByID(ctx context.Context, id uint64) (*domain.Listing, error) {
	var row schema.Listing
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewListingNotFoundError(id)
		}
		return nil, &domain.StoreError{Op: "get listing", Err: err}
	}

	l := toDomain(row)
	return &l, nil
}

func (s *pgStore) GetAll(ctx context.Context) ([]domain.Listing, error) {
	return s.find(ctx, "list listings", s.db.WithContext(ctx))
}

func (s *pgStore) GetByCreator(ctx context.Context, address string) ([]domain.Listing, error) {
	return s.find(ctx, "list listings by creator", s.db.WithContext(ctx).Where("creator = ?", address))
}

func (s *pgStore) GetByOwner(ctx context.Context, address string) ([]domain.Listing, error) {
	return s.find(ctx, "list listings by owner", s.db.WithContext(ctx).Where("owner = ?", address))
}

func (s *pgStore) SetStatus(ctx context.Context, id uint64, status domain.ListingStatus, guards ...Guard) (*domain.Listing, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "unknown status")
	}

	var updated domain.Listing
	err := s.mutate(ctx, id, "set listing status", func(tx *gorm.DB, row *schema.Listing) error {
		if err := runGuards(toDomain(*row), guards); err != nil {
			return err
		}

		row.Status = string(status)
		row.UpdatedAt = s.now()
		if err := tx.Model(row).Updates(map[string]interface{}{
			"status":     row.Status,
			"updated_at": row.UpdatedAt,
		}).Error; err != nil {
			return &domain.StoreError{Op: "set listing status", Err: err}
		}

		updated = toDomain(*row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (s *pgStore) RecordPurchase(ctx context.Context, id uint64, owner, txHash string, guards ...Guard) (*domain.Listing, error) {
	if err := validatePurchase(owner, txHash); err != nil {
		return nil, err
	}

	var updated domain.Listing
	err := s.mutate(ctx, id, "record purchase", func(tx *gorm.DB, row *schema.Listing) error {
		current := toDomain(*row)
		if err := checkPurchasable(current, owner); err != nil {
			return err
		}
		if err := runGuards(current, guards); err != nil {
			return err
		}

		now := s.now()
		row.Owner = &owner
		row.TransactionHash = &txHash
		row.PurchasedAt = &now
		row.Status = string(domain.ListingStatusPurchased)
		row.UpdatedAt = now

		// The owner IS NULL predicate keeps the write conditional even if the row lock is bypassed
		result := tx.Model(&schema.Listing{}).
			Where("id = ? AND owner IS NULL AND status = ?", id, string(domain.ListingStatusActive)).
			Updates(map[string]interface{}{
				"owner":            owner,
				"transaction_hash": txHash,
				"purchased_at":     now,
				"status":           row.Status,
				"updated_at":       now,
			})
		if result.Error != nil {
			return &domain.StoreError{Op: "record purchase", Err: result.Error}
		}
		if result.RowsAffected == 0 {
			return &domain.IllegalTransitionError{
				ListingID: id,
				From:      current.Status,
				To:        domain.ListingStatusPurchased,
				Actor:     owner,
				Reason:    domain.ReasonAlreadyOwned,
			}
		}

		updated = toDomain(*row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (s *pgStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("TRUNCATE TABLE listings RESTART IDENTITY").Error; err != nil {
		return &domain.StoreError{Op: "reset listings", Err: err}
	}
	logger.InfoCtx(ctx, "Listings table truncated")
	return nil
}

// mutate loads the listing row under a row lock and hands it to fn inside one transaction
func (s *pgStore) mutate(ctx context.Context, id uint64, op string, fn func(tx *gorm.DB, row *schema.Listing) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row schema.Listing
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewListingNotFoundError(id)
			}
			logger.ErrorCtx(ctx, err, zap.String("op", op), zap.Uint64("listing_id", id))
			return &domain.StoreError{Op: op, Err: err}
		}
		return fn(tx, &row)
	})
}

func (s *pgStore) find(ctx context.Context, op string, q *gorm.DB) ([]domain.Listing, error) {
	var rows []schema.Listing
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, &domain.StoreError{Op: op, Err: err}
	}

	out := make([]domain.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDomain(r))
	}
	return out, nil
}

func toDomain(r schema.Listing) domain.Listing {
	l := domain.Listing{
		ID:               r.ID,
		LoanToken:        domain.Token(r.LoanToken),
		LoanAmount:       r.LoanAmount,
		CollateralToken:  domain.Token(r.CollateralToken),
		CollateralAmount: r.CollateralAmount,
		APR:              r.APR,
		TermDays:         r.TermDays,
		Creator:          r.Creator,
		TokenAddress:     r.TokenAddress,
		Status:           domain.ListingStatus(r.Status),
		Owner:            r.Owner,
		TransactionHash:  r.TransactionHash,
		CreatedAt:        r.CreatedAt.UTC(),
	}
	if r.PurchasedAt != nil {
		at := r.PurchasedAt.UTC()
		l.PurchasedAt = &at
	}
	return l.Clone()
}
