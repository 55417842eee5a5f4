package service

import (
	"context"
	"fmt"

	"github.com/campusbitesindia/cbBackend-sub000/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequence mints monotonically increasing values for named counters.
type Sequence struct {
	db    *gorm.DB
	locks *KeyedMutex
}

func NewSequence(db *gorm.DB) *Sequence {
	return &Sequence{db: db, locks: NewKeyedMutex()}
}

// Next creates the counter lazily and returns its incremented value.
func (s *Sequence) Next(ctx context.Context, name string) (int64, error) {
	unlock := s.locks.Lock(name)
	defer unlock()

	var counter model.Counter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Counter{Name: name}).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Counter{}).
			Where("name = ?", name).
			UpdateColumn("seq", gorm.Expr("seq + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).First(&counter).Error
	})
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return counter.Seq, nil
}

func formatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}
