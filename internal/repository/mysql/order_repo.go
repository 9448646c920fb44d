package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/errs"
)

type orderRepo struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) order.Repository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) GetByExternalID(ctx context.Context, externalID string) (*order.Order, error) {
	var o order.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("external_id = ?", externalID).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	return &o, nil
}

func (r *orderRepo) ListRecent(ctx context.Context, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var list []*order.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Order("id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	return list, nil
}

func (r *orderRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var list []*order.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ?", status).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	return list, nil
}

func (r *orderRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Select("status, count(*) as total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	out := make(map[string]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.Total
	}
	return out, nil
}

func (r *orderRepo) SumPaidAmount(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("status = ?", order.StatusPaid).
		Select("COALESCE(SUM(paid_amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	return total, nil
}

// ApplyTransition 单条条件 UPDATE：只有仍处于 PENDING 的行会被改写，
// 并发的重复回调只有一个能命中，其余 applied=false。
func (r *orderRepo) ApplyTransition(ctx context.Context, externalID string, tr order.Transition) (*order.Order, bool, error) {
	fields := map[string]interface{}{
		"status":     tr.ToStatus,
		"updated_at": time.Now(),
	}
	if tr.ToStatus == order.StatusPaid {
		fields["paid_at"] = tr.PaidAt
		fields["paid_amount"] = tr.PaidAmount
		fields["payment_method"] = tr.PaymentMethod
		fields["payment_channel"] = tr.PaymentChannel
		fields["payment_destination"] = tr.PaymentDestination
	}

	res := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("external_id = ? AND status = ?", externalID, order.StatusPending).
		Updates(fields)
	if res.Error != nil {
		return nil, false, fmt.Errorf("%w: %v", errs.ErrStore, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	o, err := r.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (r *orderRepo) MarkNotified(ctx context.Context, externalID string, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("external_id = ?", externalID).
		Updates(map[string]interface{}{
			"whatsapp_success_sent":    true,
			"whatsapp_success_sent_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	return nil
}
