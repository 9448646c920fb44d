package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/errs"
	"github.com/example/paygate/internal/gateway"
	"github.com/example/paygate/internal/notify"
)

// fakeOrderRepo 内存订单仓储，行为对齐 mysql 实现：
// external_id 撞库返回 gorm.ErrDuplicatedKey，条件迁移只命中 PENDING 行。
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	nextID int64

	failCreates int  // 前 N 次 Create 强制返回唯一键冲突
	storeDown   bool // 模拟存储不可用
	lookups     int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]*order.Order{}}
}

func (r *fakeOrderRepo) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeDown {
		return fmt.Errorf("%w: down", errs.ErrStore)
	}
	if r.failCreates > 0 {
		r.failCreates--
		return gorm.ErrDuplicatedKey
	}
	if _, exists := r.orders[o.ExternalID]; exists {
		return gorm.ErrDuplicatedKey
	}
	r.nextID++
	o.ID = r.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	r.orders[o.ExternalID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByExternalID(ctx context.Context, externalID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.storeDown {
		return nil, fmt.Errorf("%w: down", errs.ErrStore)
	}
	o, ok := r.orders[externalID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) ListRecent(ctx context.Context, limit int) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*order.Order, 0, len(r.orders))
	for _, o := range r.orders {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeOrderRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*order.Order
	for _, o := range r.orders {
		if o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for _, o := range r.orders {
		out[o.Status]++
	}
	return out, nil
}

func (r *fakeOrderRepo) SumPaidAmount(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, o := range r.orders {
		if o.Status == order.StatusPaid {
			total += o.PaidAmount
		}
	}
	return total, nil
}

func (r *fakeOrderRepo) ApplyTransition(ctx context.Context, externalID string, tr order.Transition) (*order.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeDown {
		return nil, false, fmt.Errorf("%w: down", errs.ErrStore)
	}
	o, ok := r.orders[externalID]
	if !ok || o.Status != order.StatusPending {
		return nil, false, nil
	}
	o.Status = tr.ToStatus
	o.UpdatedAt = time.Now()
	if tr.ToStatus == order.StatusPaid {
		o.PaidAt = tr.PaidAt
		o.PaidAmount = tr.PaidAmount
		o.PaymentMethod = tr.PaymentMethod
		o.PaymentChannel = tr.PaymentChannel
		o.PaymentDestination = tr.PaymentDestination
	}
	cp := *o
	return &cp, true, nil
}

func (r *fakeOrderRepo) MarkNotified(ctx context.Context, externalID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[externalID]
	if !ok {
		return errs.ErrNotFound
	}
	o.WhatsappSuccessSent = true
	o.WhatsappSuccessSentAt = &at
	return nil
}

// stored 直接取底层记录，测试断言用
func (r *fakeOrderRepo) stored(externalID string) *order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[externalID]
}

func (r *fakeOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// fakeGateway 可编排的发票网关
type fakeGateway struct {
	mu    sync.Mutex
	calls int
	fail  bool
	url   string
}

func (g *fakeGateway) CreateInvoice(ctx context.Context, req gateway.CreateInvoiceRequest) (*gateway.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail {
		return nil, fmt.Errorf("%w: upstream 500", errs.ErrGateway)
	}
	url := g.url
	if url == "" {
		url = "https://pay.example/" + req.ExternalID
	}
	return &gateway.Invoice{ID: "inv-" + req.ExternalID, URL: url}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeDispatcher 收集入队的通知
type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	fail bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return fmt.Errorf("mq unavailable")
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *fakeDispatcher) messages() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notify.Message, len(d.sent))
	copy(out, d.sent)
	return out
}
