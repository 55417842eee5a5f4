package service

import (
	"context"
	"fmt"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Penalties tracks late-cancellation penalties per device and canteen.
// Rows are reserved by the order that carries them, settled when that order completes
// and released when it is cancelled.
type Penalties struct {
	db *gorm.DB
}

func NewPenalties(db *gorm.DB) *Penalties {
	return &Penalties{db: db}
}

func outstandingScope(deviceID string, canteenID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("device_id = ? AND canteen_id = ? AND is_paid = ? AND applied_order_id IS NULL",
			deviceID, canteenID, false)
	}
}

// Outstanding sums the unpaid penalties not yet carried by any order.
func (p *Penalties) Outstanding(ctx context.Context, deviceID string, canteenID uint) (decimal.Decimal, error) {
	var rows []model.Penalty
	if err := p.db.WithContext(ctx).Scopes(outstandingScope(deviceID, canteenID)).Find(&rows).Error; err != nil {
		return decimal.Zero, fmt.Errorf("outstanding penalty: %w", err)
	}
	return sumPenalties(rows), nil
}

// reserve attaches every outstanding penalty to orderID and returns what it attached.
func (p *Penalties) reserve(tx *gorm.DB, deviceID string, canteenID uint, orderID uint) (decimal.Decimal, error) {
	if deviceID == "" {
		return decimal.Zero, nil
	}
	if err := tx.Model(&model.Penalty{}).
		Scopes(outstandingScope(deviceID, canteenID)).
		Update("applied_order_id", orderID).Error; err != nil {
		return decimal.Zero, fmt.Errorf("reserve penalties: %w", err)
	}
	var rows []model.Penalty
	if err := tx.Where("applied_order_id = ? AND is_paid = ?", orderID, false).Find(&rows).Error; err != nil {
		return decimal.Zero, fmt.Errorf("reserve penalties: %w", err)
	}
	return sumPenalties(rows), nil
}

func (p *Penalties) settle(tx *gorm.DB, orderID uint, at time.Time) error {
	err := tx.Model(&model.Penalty{}).
		Where("applied_order_id = ? AND is_paid = ?", orderID, false).
		Updates(map[string]any{"is_paid": true, "paid_at": at}).Error
	if err != nil {
		return fmt.Errorf("settle penalties: %w", err)
	}
	return nil
}

func (p *Penalties) release(tx *gorm.DB, orderID uint) error {
	err := tx.Model(&model.Penalty{}).
		Where("applied_order_id = ? AND is_paid = ?", orderID, false).
		Update("applied_order_id", nil).Error
	if err != nil {
		return fmt.Errorf("release penalties: %w", err)
	}
	return nil
}

func (p *Penalties) accrue(tx *gorm.DB, order model.Order, reason string) (*model.Penalty, error) {
	penalty := model.Penalty{
		DeviceID:  order.DeviceID,
		CanteenID: order.CanteenID,
		UserID:    order.StudentID,
		OrderID:   order.ID,
		Amount:    toFloat(cancellationPenalty(toDecimal(order.Total))),
		Reason:    reason,
	}
	if err := tx.Create(&penalty).Error; err != nil {
		return nil, fmt.Errorf("accrue penalty: %w", err)
	}
	return &penalty, nil
}

func sumPenalties(rows []model.Penalty) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(toDecimal(r.Amount))
	}
	return sum
}
