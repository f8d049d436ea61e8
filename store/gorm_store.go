package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/xkcdviews/models"
)

// GormStore keeps counters in a SQL database through gorm.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a GormStore on top of an opened and migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// GetOrCreate inserts a zero counter when missing and reads the row back.
// A concurrent insert for the same comic turns into a no-op through the primary key.
func (s *GormStore) GetOrCreate(ctx context.Context, comicNumber int) (*models.ComicViewCounter, bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "comic_number"}}, DoNothing: true}).
		Create(&models.ComicViewCounter{ComicNumber: comicNumber})
	if res.Error != nil {
		return nil, false, fmt.Errorf("create counter %d: %w", comicNumber, res.Error)
	}

	var counter models.ComicViewCounter
	if err := s.db.WithContext(ctx).First(&counter, "comic_number = ?", comicNumber).Error; err != nil {
		return nil, false, fmt.Errorf("load counter %d: %w", comicNumber, translate(err))
	}
	return &counter, res.RowsAffected > 0, nil
}

// Create performs a plain insert so a second row for the same comic fails.
func (s *GormStore) Create(ctx context.Context, counter *models.ComicViewCounter) error {
	if err := s.db.WithContext(ctx).Create(counter).Error; err != nil {
		return fmt.Errorf("create counter %d: %w", counter.ComicNumber, translate(err))
	}
	return nil
}

// IncrementView upserts the counter and today's bucket in one transaction.
// Both statements add to the stored value, so concurrent increments never lose updates.
func (s *GormStore) IncrementView(ctx context.Context, comicNumber int) (int64, error) {
	var counter models.ComicViewCounter
	day := Today(s.now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "comic_number"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"view_count": gorm.Expr("view_count + ?", 1)}),
		}).Create(&models.ComicViewCounter{ComicNumber: comicNumber, ViewCount: 1}).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}, {Name: "comic_number"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"views": gorm.Expr("views + ?", 1)}),
		}).Create(&models.ComicDailyView{Day: day, ComicNumber: comicNumber, Views: 1}).Error; err != nil {
			return err
		}

		return tx.First(&counter, "comic_number = ?", comicNumber).Error
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter %d: %w", comicNumber, translate(err))
	}
	return counter.ViewCount, nil
}

func (s *GormStore) GetViewCount(ctx context.Context, comicNumber int) (int64, error) {
	var counter models.ComicViewCounter
	if err := s.db.WithContext(ctx).First(&counter, "comic_number = ?", comicNumber).Error; err != nil {
		return 0, translate(err)
	}
	return counter.ViewCount, nil
}

func (s *GormStore) Delete(ctx context.Context, comicNumber int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.ComicViewCounter{}, "comic_number = ?", comicNumber)
		if res.Error != nil {
			return fmt.Errorf("delete counter %d: %w", comicNumber, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("comic_number = ?", comicNumber).Delete(&models.ComicDailyView{}).Error; err != nil {
			return fmt.Errorf("delete daily views %d: %w", comicNumber, err)
		}
		return nil
	})
}

func (s *GormStore) Top(ctx context.Context, limit int) ([]models.ComicViewCounter, error) {
	var items []models.ComicViewCounter
	if err := limited(s.db.WithContext(ctx), limit).
		Order("view_count DESC").Order("comic_number ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list top counters: %w", err)
	}
	return items, nil
}

func (s *GormStore) Trending(ctx context.Context, day string, limit int) ([]models.ComicDailyView, error) {
	var items []models.ComicDailyView
	if err := limited(s.db.WithContext(ctx), limit).
		Where("day = ?", day).
		Order("views DESC").Order("comic_number ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list trending for %s: %w", day, err)
	}
	return items, nil
}

func (s *GormStore) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	if err := s.db.WithContext(ctx).Model(&models.ComicViewCounter{}).
		Select("COUNT(*) AS comics, COALESCE(SUM(view_count),0) AS views").
		Scan(&t).Error; err != nil {
		return Totals{}, fmt.Errorf("sum counters: %w", err)
	}
	return t, nil
}

func limited(db *gorm.DB, limit int) *gorm.DB {
	if limit > 0 {
		return db.Limit(limit)
	}
	return db
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// isUniqueViolation covers dialectors that do not translate errors themselves.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "Duplicate entry") // mysql 1062
}
