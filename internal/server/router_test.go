package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/httptest"

	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/errs"
	"github.com/example/paygate/internal/gateway"
	"github.com/example/paygate/internal/notify"
	"github.com/example/paygate/internal/service"
)

const testCallbackToken = "cb-secret"

// memOrderRepo 仅覆盖 handler 测试用到的路径
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	nextID int64
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[string]*order.Order{}}
}

func (r *memOrderRepo) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = r.nextID
	cp := *o
	r.orders[o.ExternalID] = &cp
	return nil
}

func (r *memOrderRepo) GetByExternalID(ctx context.Context, externalID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[externalID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) ListRecent(ctx context.Context, limit int) ([]*order.Order, error) {
	return nil, nil
}

func (r *memOrderRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*order.Order, error) {
	return nil, nil
}

func (r *memOrderRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (r *memOrderRepo) SumPaidAmount(ctx context.Context) (int64, error) { return 0, nil }

func (r *memOrderRepo) ApplyTransition(ctx context.Context, externalID string, tr order.Transition) (*order.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[externalID]
	if !ok || o.Status != order.StatusPending {
		return nil, false, nil
	}
	o.Status = tr.ToStatus
	if tr.ToStatus == order.StatusPaid {
		o.PaidAt = tr.PaidAt
		o.PaidAmount = tr.PaidAmount
	}
	cp := *o
	return &cp, true, nil
}

func (r *memOrderRepo) MarkNotified(ctx context.Context, externalID string, at time.Time) error {
	return nil
}

type memDispatcher struct{}

func (memDispatcher) Dispatch(ctx context.Context, msg notify.Message) error { return nil }

type memGateway struct{}

func (memGateway) CreateInvoice(ctx context.Context, req gateway.CreateInvoiceRequest) (*gateway.Invoice, error) {
	return &gateway.Invoice{ID: "inv-" + req.ExternalID, URL: "https://pay.example/" + req.ExternalID}, nil
}

func newTestApp(repo *memOrderRepo) *iris.Application {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.Webhook.LookupRetries = 1

	verifier := service.NewStaticTokenVerifier(testCallbackToken)
	deps := &Deps{
		Cfg:       cfg,
		Checkout:  service.NewCheckoutService(repo, memGateway{}, memDispatcher{}, "62"),
		Reconcile: service.NewReconcileService(repo, memDispatcher{}, verifier, "62", &cfg.Webhook),
		Orders:    service.NewOrderService(repo),
	}

	app := iris.New()
	RegisterRoutes(app, deps)
	return app
}

func seedPending(repo *memOrderRepo, externalID string) {
	_ = repo.Create(context.Background(), &order.Order{
		ExternalID:    externalID,
		Amount:        150000,
		Status:        order.StatusPending,
		CustomerEmail: "budi@example.com",
	})
}

func TestWebhookEndpointHappyPath(t *testing.T) {
	repo := newMemOrderRepo()
	seedPending(repo, "invoice-ok")
	e := httptest.New(t, newTestApp(repo))

	e.POST("/api/webhook/xendit").
		WithHeader("x-callback-token", testCallbackToken).
		WithJSON(iris.Map{"external_id": "invoice-ok", "status": "PAID", "paid_amount": 150000}).
		Expect().Status(200).
		Body().Contains("Webhook processed successfully").Contains(`"new_status":"PAID"`)
}

func TestWebhookEndpointDuplicateDelivery(t *testing.T) {
	repo := newMemOrderRepo()
	seedPending(repo, "invoice-dup")
	e := httptest.New(t, newTestApp(repo))

	payload := iris.Map{"external_id": "invoice-dup", "status": "PAID"}

	e.POST("/api/webhook/xendit").
		WithHeader("x-callback-token", testCallbackToken).
		WithJSON(payload).
		Expect().Status(200)

	// 重复投递仍 2xx，old/new 都是 PAID
	e.POST("/api/webhook/xendit").
		WithHeader("x-callback-token", testCallbackToken).
		WithJSON(payload).
		Expect().Status(200).
		Body().Contains(`"old_status":"PAID"`).Contains(`"new_status":"PAID"`)
}

func TestWebhookEndpointBadToken(t *testing.T) {
	repo := newMemOrderRepo()
	seedPending(repo, "invoice-auth")
	e := httptest.New(t, newTestApp(repo))

	e.POST("/api/webhook/xendit").
		WithHeader("x-callback-token", "wrong").
		WithJSON(iris.Map{"external_id": "invoice-auth", "status": "PAID"}).
		Expect().Status(401).
		Body().Contains("invalid callback token")
}

func TestWebhookEndpointUnknownStatus(t *testing.T) {
	repo := newMemOrderRepo()
	seedPending(repo, "invoice-odd")
	e := httptest.New(t, newTestApp(repo))

	e.POST("/api/webhook/xendit").
		WithHeader("x-callback-token", testCallbackToken).
		WithJSON(iris.Map{"external_id": "invoice-odd", "status": "REFUNDED"}).
		Expect().Status(200).
		Body().Contains("unrecognized status ignored")
}

func TestWebhookEndpointNotFound(t *testing.T) {
	e := httptest.New(t, newTestApp(newMemOrderRepo()))

	e.POST("/api/webhook/xendit").
		WithHeader("x-callback-token", testCallbackToken).
		WithJSON(iris.Map{"external_id": "invoice-nope", "status": "PAID"}).
		Expect().Status(404).
		Body().Contains("invoice-nope")
}

func TestWebhookEndpointMissingFields(t *testing.T) {
	e := httptest.New(t, newTestApp(newMemOrderRepo()))

	e.POST("/api/webhook/xendit").
		WithHeader("x-callback-token", testCallbackToken).
		WithJSON(iris.Map{"status": "PAID"}).
		Expect().Status(400)
}

func TestCheckoutEndpoint(t *testing.T) {
	repo := newMemOrderRepo()
	e := httptest.New(t, newTestApp(repo))

	e.POST("/api/checkout").
		WithJSON(iris.Map{
			"total":          150000,
			"items":          []iris.Map{{"productId": 1, "name": "Kaset Vol.1", "price": 150000, "quantity": 1}},
			"customer_email": "budi@example.com",
		}).
		Expect().Status(200).
		Body().Contains("invoiceUrl").Contains("invoice-")
}

func TestCheckoutEndpointValidation(t *testing.T) {
	e := httptest.New(t, newTestApp(newMemOrderRepo()))

	e.POST("/api/checkout").
		WithJSON(iris.Map{"total": 0, "items": []iris.Map{}, "customer_email": "budi@example.com"}).
		Expect().Status(400)
}

func TestOrderEndpointRequiresAuth(t *testing.T) {
	repo := newMemOrderRepo()
	seedPending(repo, "invoice-private")
	e := httptest.New(t, newTestApp(repo))

	e.GET("/api/orders/invoice-private").
		Expect().Status(401)
}

func TestHealthEndpoint(t *testing.T) {
	e := httptest.New(t, newTestApp(newMemOrderRepo()))
	e.GET("/api/health").Expect().Status(200).Body().Contains("ok")
}
