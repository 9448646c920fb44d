package service

import (
	"context"

	"github.com/example/paygate/internal/datamodels/order"
)

// OrderService 用于前台订单查询与后台订单管理
type OrderService struct {
	repo order.Repository
}

// NewOrderService 创建订单服务
func NewOrderService(repo order.Repository) *OrderService {
	return &OrderService{repo: repo}
}

// GetByExternalID 按对账键查询订单
func (s *OrderService) GetByExternalID(ctx context.Context, externalID string) (*order.Order, error) {
	return s.repo.GetByExternalID(ctx, externalID)
}

// List 查询最近订单，status 为空时不过滤
func (s *OrderService) List(ctx context.Context, status string, limit int) ([]*order.Order, error) {
	if status == "" {
		return s.repo.ListRecent(ctx, limit)
	}
	return s.repo.ListByStatus(ctx, status, limit)
}

// AnalyticsSummary 订单概览数据
type AnalyticsSummary struct {
	CountByStatus map[string]int64 `json:"count_by_status"`
	PaidRevenue   int64            `json:"paid_revenue"`
}

// Analytics 统计各状态订单数与已支付流水
func (s *OrderService) Analytics(ctx context.Context) (*AnalyticsSummary, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.repo.SumPaidAmount(ctx)
	if err != nil {
		return nil, err
	}
	return &AnalyticsSummary{CountByStatus: counts, PaidRevenue: revenue}, nil
}
