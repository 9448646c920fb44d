package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/errs"
	"github.com/example/paygate/internal/gateway"
	"github.com/example/paygate/internal/notify"
)

// NotifyDispatcher 通知入队接口，测试时可替换
type NotifyDispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message) error
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// external_id 冲突时的重试次数（UUID 冲突几乎不可能，兜底用）
const externalIDRetries = 3

// CheckoutRequest 下单请求
type CheckoutRequest struct {
	Total         int64          `json:"total"`
	Items         []CheckoutItem `json:"items"`
	CustomerName  string         `json:"customer_name"`
	CustomerEmail string         `json:"customer_email"`
	CustomerPhone string         `json:"customer_phone"`
}

// CheckoutItem 下单商品行
type CheckoutItem struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

// CheckoutResult 下单结果，字段名与前端约定保持一致
type CheckoutResult struct {
	InvoiceURL string `json:"invoiceUrl"`
	OrderID    int64  `json:"orderId"`
	ExternalID string `json:"externalId"`
}

// CheckoutService 下单编排：校验 → 创建发票 → 落库 PENDING → 尽力通知
type CheckoutService struct {
	orderRepo  order.Repository
	gateway    gateway.InvoiceGateway
	dispatcher NotifyDispatcher
	defaultCC  string
}

// NewCheckoutService 创建下单服务
func NewCheckoutService(orderRepo order.Repository, gw gateway.InvoiceGateway, dispatcher NotifyDispatcher, defaultCC string) *CheckoutService {
	return &CheckoutService{
		orderRepo:  orderRepo,
		gateway:    gw,
		dispatcher: dispatcher,
		defaultCC:  defaultCC,
	}
}

func (s *CheckoutService) validate(req *CheckoutRequest) error {
	if req.Total <= 0 {
		return errs.Invalid("total", "must be a positive number")
	}
	if len(req.Items) == 0 {
		return errs.Invalid("items", "must not be empty")
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.Name) == "" {
			return errs.Invalid(fmt.Sprintf("items[%d].name", i), "must not be empty")
		}
		if it.Quantity < 1 {
			return errs.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		if it.Price < 0 {
			return errs.Invalid(fmt.Sprintf("items[%d].price", i), "must not be negative")
		}
	}
	if !emailPattern.MatchString(req.CustomerEmail) {
		return errs.Invalid("customer_email", "must be a valid email address")
	}
	return nil
}

// Checkout 执行下单。发票创建失败时不落库，不会留下无法支付的 PENDING 订单。
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	GetMonitor().RecordCheckoutRequest()

	// 1. 入参校验，先于一切外部调用
	if err := s.validate(req); err != nil {
		return nil, err
	}

	items := make([]order.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}

	// 2. 创建发票并落库。external_id 撞唯一键时换一个重来，
	//    发票创建始终在落库之前，保证不产生无支付链接的订单。
	var o *order.Order
	var invoiceURL string
	for attempt := 0; attempt < externalIDRetries; attempt++ {
		externalID := "invoice-" + uuid.NewString()

		inv, err := s.gateway.CreateInvoice(ctx, gateway.CreateInvoiceRequest{
			ExternalID:  externalID,
			Amount:      req.Total,
			PayerEmail:  req.CustomerEmail,
			Description: fmt.Sprintf("Payment for %d items", len(req.Items)),
		})
		if err != nil {
			GetMonitor().RecordGatewayError()
			return nil, err
		}

		candidate := &order.Order{
			ExternalID:       externalID,
			Amount:           req.Total,
			Status:           order.StatusPending,
			Items:            items,
			CustomerName:     req.CustomerName,
			CustomerEmail:    req.CustomerEmail,
			CustomerPhone:    req.CustomerPhone,
			XenditInvoiceURL: inv.URL,
		}
		if err := s.orderRepo.Create(ctx, candidate); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				log.Printf("external_id collision on %s, retrying", externalID)
				continue
			}
			GetMonitor().RecordStoreError()
			return nil, fmt.Errorf("%w: create order: %v", errs.ErrStore, err)
		}
		o = candidate
		invoiceURL = inv.URL
		break
	}
	if o == nil {
		GetMonitor().RecordStoreError()
		return nil, fmt.Errorf("%w: external_id conflict persisted after %d attempts", errs.ErrStore, externalIDRetries)
	}

	// 3. 尽力而为地通知下单成功，失败只记日志，不影响下单结果
	if req.CustomerPhone != "" && s.dispatcher != nil {
		msg := notify.Message{
			Kind: notify.KindOrderCreated,
			To:   notify.NormalizePhone(req.CustomerPhone, s.defaultCC),
			Vars: map[string]string{
				"customer_name": displayName(req.CustomerName),
				"order_number":  o.ExternalID,
				"amount":        notify.FormatRupiah(o.Amount),
				"invoice_url":   invoiceURL,
			},
		}
		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			GetMonitor().RecordNotifyError()
			log.Printf("failed to enqueue order-created notification for %s: %v", o.ExternalID, err)
		} else {
			GetMonitor().RecordNotifyEnqueued()
		}
	}

	GetMonitor().RecordCheckoutSuccess()
	return &CheckoutResult{
		InvoiceURL: invoiceURL,
		OrderID:    o.ID,
		ExternalID: o.ExternalID,
	}, nil
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Customer"
	}
	return name
}
