package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/holiman/uint256"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"referrald/internal/models"
)

type participantRow struct {
	Address       string `gorm:"primaryKey;size:42"`
	Referrer      string `gorm:"size:42;index"`
	RewardBalance string `gorm:"size:78;not null;default:'0'"`
	ReferredCount uint64 `gorm:"not null;default:0"`
	LastActiveAt  int64  `gorm:"not null;default:0"`
	UpdatedAt     time.Time
}

func (participantRow) TableName() string { return "referral_participants" }

type receiptRow struct {
	Reference      string `gorm:"primaryKey;size:255"`
	Subject        string `gorm:"size:42;index"`
	PurchaseAmount string `gorm:"size:78;not null"`
	TotalPoints    string `gorm:"size:78;not null"`
	CreatedAt      int64  `gorm:"autoCreateTime:false"`
}

func (receiptRow) TableName() string { return "referral_receipts" }

// SQLStore persists participants through gorm (postgres in production,
// sqlite for local runs and tests). Amounts are stored as decimal strings.
type SQLStore struct {
	db *gorm.DB
}

func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger,
	})
}

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&participantRow{}, &receiptRow{}); err != nil {
		return nil, fmt.Errorf("migrate referral tables: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func addressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func toParticipantRow(p models.Participant) participantRow {
	row := participantRow{
		Address:       addressKey(p.Address),
		RewardBalance: p.Balance().Dec(),
		ReferredCount: p.ReferredCount,
		LastActiveAt:  p.LastActiveAt,
	}
	if p.HasReferrer() {
		row.Referrer = addressKey(p.Referrer)
	}
	return row
}

func (row participantRow) toModel() (models.Participant, error) {
	balance, err := uint256.FromDecimal(row.RewardBalance)
	if err != nil {
		return models.Participant{}, fmt.Errorf("reward balance of %s: %w", row.Address, err)
	}
	p := models.Participant{
		Address:       common.HexToAddress(row.Address),
		RewardBalance: balance,
		ReferredCount: row.ReferredCount,
		LastActiveAt:  row.LastActiveAt,
	}
	if row.Referrer != "" {
		p.Referrer = common.HexToAddress(row.Referrer)
	}
	return p, nil
}

func (s *SQLStore) Get(ctx context.Context, addr common.Address) (models.Participant, bool, error) {
	var row participantRow
	err := s.db.WithContext(ctx).First(&row, "address = ?", addressKey(addr)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewParticipant(addr), false, nil
	}
	if err != nil {
		return models.Participant{}, false, err
	}
	p, err := row.toModel()
	if err != nil {
		return models.Participant{}, false, err
	}
	return p, true, nil
}

func (s *SQLStore) Commit(ctx context.Context, batch *models.Batch) error {
	if batch == nil || (len(batch.Participants) == 0 && batch.Receipt == nil) {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(batch.Participants) > 0 {
			rows := make([]participantRow, 0, len(batch.Participants))
			for _, p := range batch.Participants {
				rows = append(rows, toParticipantRow(p))
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return fmt.Errorf("upsert participants: %w", err)
			}
		}
		if rc := batch.Receipt; rc != nil {
			row := receiptRow{
				Reference:      rc.Reference,
				Subject:        addressKey(rc.Subject),
				PurchaseAmount: amountOrZero(rc.PurchaseAmount).Dec(),
				TotalPoints:    amountOrZero(rc.TotalPoints).Dec(),
				CreatedAt:      rc.CreatedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert receipt: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Receipt(ctx context.Context, reference string) (*models.Receipt, bool, error) {
	var row receiptRow
	err := s.db.WithContext(ctx).First(&row, "reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	amount, err := uint256.FromDecimal(row.PurchaseAmount)
	if err != nil {
		return nil, false, err
	}
	points, err := uint256.FromDecimal(row.TotalPoints)
	if err != nil {
		return nil, false, err
	}
	return &models.Receipt{
		Reference:      row.Reference,
		Subject:        common.HexToAddress(row.Subject),
		PurchaseAmount: amount,
		TotalPoints:    points,
		CreatedAt:      row.CreatedAt,
	}, true, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&participantRow{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
