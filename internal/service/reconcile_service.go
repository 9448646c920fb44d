package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/errs"
	"github.com/example/paygate/internal/notify"
)

// TokenVerifier 回调鉴权策略。所有 webhook 入口共用同一个门，
// 不允许按 handler 各自为政。
type TokenVerifier interface {
	Verify(token string) bool
}

// StaticTokenVerifier 与配置中的共享密钥做恒定时间比较
type StaticTokenVerifier struct {
	token string
}

// NewStaticTokenVerifier 创建静态令牌校验器
func NewStaticTokenVerifier(token string) *StaticTokenVerifier {
	return &StaticTokenVerifier{token: token}
}

func (v *StaticTokenVerifier) Verify(token string) bool {
	if v.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(v.token), []byte(token)) == 1
}

// WebhookPayload 支付网关回调体
type WebhookPayload struct {
	ID                 string     `json:"id"`
	ExternalID         string     `json:"external_id"`
	Status             string     `json:"status"`
	PaidAmount         int64      `json:"paid_amount"`
	PaidAt             *time.Time `json:"paid_at"`
	PaymentMethod      string     `json:"payment_method"`
	PaymentChannel     string     `json:"payment_channel"`
	PaymentDestination string     `json:"payment_destination"`
}

// ReconcileResult 对账处理结果
type ReconcileResult struct {
	OrderID          int64
	ExternalID       string
	OldStatus        string
	NewStatus        string
	Applied          bool // 本次回调真正产生了状态迁移
	Ignored          bool // 状态未知，仅告知网关收到
	NotificationSent bool
}

// MapStatus 网关状态到本地状态的映射，大小写不敏感。
// 未列举的状态一律拒绝（但 HTTP 层仍回 2xx，避免网关无限重试）。
func MapStatus(raw string) (string, bool) {
	switch strings.ToUpper(raw) {
	case "PAID", "SETTLED":
		return order.StatusPaid, true
	case "EXPIRED":
		return order.StatusExpired, true
	case "FAILED":
		return order.StatusFailed, true
	case "CANCELLED":
		return order.StatusCancelled, true
	}
	return "", false
}

// ReconcileService webhook 对账：定位订单、应用状态迁移、触发成功通知。
// 迁移通过仓储层的单条条件 UPDATE 完成，这也是并发重复回调的串行化点。
type ReconcileService struct {
	orderRepo  order.Repository
	dispatcher NotifyDispatcher
	verifier   TokenVerifier
	defaultCC  string

	lookupRetries    int
	lookupRetryDelay time.Duration
}

// NewReconcileService 创建对账服务
func NewReconcileService(
	orderRepo order.Repository,
	dispatcher NotifyDispatcher,
	verifier TokenVerifier,
	defaultCC string,
	cfg *config.WebhookConfig,
) *ReconcileService {
	retries := 3
	delay := 200 * time.Millisecond
	if cfg != nil {
		if cfg.LookupRetries > 0 {
			retries = cfg.LookupRetries
		}
		if cfg.LookupRetryDelay >= 0 {
			delay = cfg.LookupRetryDelay
		}
	}
	return &ReconcileService{
		orderRepo:        orderRepo,
		dispatcher:       dispatcher,
		verifier:         verifier,
		defaultCC:        defaultCC,
		lookupRetries:    retries,
		lookupRetryDelay: delay,
	}
}

// lookup 按 external_id 查订单。webhook 可能赶在建单事务可见之前到达，
// 查不到先短暂等待再试，重试耗尽才算 NotFound。
func (s *ReconcileService) lookup(ctx context.Context, externalID string) (*order.Order, error) {
	var lastErr error
	for attempt := 0; attempt < s.lookupRetries; attempt++ {
		o, err := s.orderRepo.GetByExternalID(ctx, externalID)
		if err == nil {
			return o, nil
		}
		lastErr = err
		if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		if attempt < s.lookupRetries-1 && s.lookupRetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", errs.ErrStore, ctx.Err())
			case <-time.After(s.lookupRetryDelay):
			}
		}
	}
	return nil, lastErr
}

// Reconcile 处理一次支付状态回调。
// 幂等：订单已处于目标终态时不再迁移、不再发通知，结果仍视为成功。
func (s *ReconcileService) Reconcile(ctx context.Context, callbackToken string, p *WebhookPayload) (*ReconcileResult, error) {
	// 1. 回调鉴权，先于任何存储访问
	if !s.verifier.Verify(callbackToken) {
		return nil, errs.ErrUnauthorized
	}
	GetMonitor().RecordWebhookReceived()

	// 2. 必填字段
	if p == nil || p.ExternalID == "" {
		return nil, errs.Invalid("external_id", "is required")
	}
	if p.Status == "" {
		return nil, errs.Invalid("status", "is required")
	}

	// 3. 状态映射，未知状态不入库
	target, known := MapStatus(p.Status)
	if !known {
		GetMonitor().RecordWebhookRejected()
		log.Printf("webhook for %s carries unknown status %q, ignoring", p.ExternalID, p.Status)
		return &ReconcileResult{ExternalID: p.ExternalID, Ignored: true}, nil
	}

	// 4. 定位订单
	o, err := s.lookup(ctx, p.ExternalID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			GetMonitor().RecordStoreError()
		}
		return nil, err
	}

	// 5. 终态订单：重复投递走幂等 no-op，不同终态也不再改写
	if order.IsTerminal(o.Status) {
		GetMonitor().RecordWebhookIgnored()
		return &ReconcileResult{
			OrderID:          o.ID,
			ExternalID:       o.ExternalID,
			OldStatus:        o.Status,
			NewStatus:        o.Status,
			Applied:          false,
			NotificationSent: o.WhatsappSuccessSent,
		}, nil
	}

	// 6. 单条条件 UPDATE 应用迁移
	tr := order.Transition{ToStatus: target}
	if target == order.StatusPaid {
		paidAt := time.Now()
		if p.PaidAt != nil {
			paidAt = *p.PaidAt
		}
		paidAmount := p.PaidAmount
		if paidAmount == 0 {
			paidAmount = o.Amount
		}
		tr.PaidAt = &paidAt
		tr.PaidAmount = paidAmount
		tr.PaymentMethod = p.PaymentMethod
		tr.PaymentChannel = p.PaymentChannel
		tr.PaymentDestination = p.PaymentDestination
	}

	oldStatus := o.Status
	updated, applied, err := s.orderRepo.ApplyTransition(ctx, o.ExternalID, tr)
	if err != nil {
		GetMonitor().RecordStoreError()
		return nil, err
	}
	if !applied {
		// 并发回调输掉了 UPDATE 竞争，重读后按幂等 no-op 返回
		cur, err := s.orderRepo.GetByExternalID(ctx, o.ExternalID)
		if err != nil {
			GetMonitor().RecordStoreError()
			return nil, fmt.Errorf("%w: order %s vanished during reconcile", errs.ErrStore, o.ExternalID)
		}
		GetMonitor().RecordWebhookIgnored()
		return &ReconcileResult{
			OrderID:          cur.ID,
			ExternalID:       cur.ExternalID,
			OldStatus:        cur.Status,
			NewStatus:        cur.Status,
			Applied:          false,
			NotificationSent: cur.WhatsappSuccessSent,
		}, nil
	}
	GetMonitor().RecordWebhookApplied()

	// 7. 迁移到 PAID 后补发成功通知，失败只记录不影响回调结果
	if target == order.StatusPaid && updated.CustomerPhone != "" && s.dispatcher != nil {
		msg := notify.Message{
			Kind:       notify.KindPaymentSuccess,
			To:         notify.NormalizePhone(updated.CustomerPhone, s.defaultCC),
			ExternalID: updated.ExternalID,
			Vars: map[string]string{
				"customer_name": displayName(updated.CustomerName),
				"amount":        notify.FormatRupiah(updated.PaidAmount),
				"order_number":  updated.ExternalID,
			},
		}
		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			GetMonitor().RecordNotifyError()
			log.Printf("failed to enqueue payment-success notification for %s: %v", updated.ExternalID, err)
		} else {
			GetMonitor().RecordNotifyEnqueued()
		}
	}

	return &ReconcileResult{
		OrderID:          updated.ID,
		ExternalID:       updated.ExternalID,
		OldStatus:        oldStatus,
		NewStatus:        updated.Status,
		Applied:          true,
		NotificationSent: updated.WhatsappSuccessSent,
	}, nil
}
