package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/errs"
	"github.com/example/paygate/internal/notify"
)

func newCheckoutFixture(t *testing.T) (*CheckoutService, *fakeOrderRepo, *fakeGateway, *fakeDispatcher) {
	t.Helper()
	repo := newFakeOrderRepo()
	gw := &fakeGateway{}
	disp := &fakeDispatcher{}
	svc := NewCheckoutService(repo, gw, disp, "62")
	return svc, repo, gw, disp
}

func validCheckoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		Total: 250000,
		Items: []CheckoutItem{
			{ProductID: 1, Name: "Kaset Pita Indie Vol.1", Price: 100000, Quantity: 1},
			{ProductID: 2, Name: "Kaset Pita Indie Vol.2", Price: 75000, Quantity: 2},
		},
		CustomerName:  "Siti",
		CustomerEmail: "siti@example.com",
		CustomerPhone: "081234567890",
	}
}

func TestCheckoutSuccess(t *testing.T) {
	svc, repo, _, disp := newCheckoutFixture(t)

	res, err := svc.Checkout(context.Background(), validCheckoutRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ExternalID, "invoice-"))
	assert.Equal(t, "https://pay.example/"+res.ExternalID, res.InvoiceURL)
	assert.NotZero(t, res.OrderID)

	stored := repo.stored(res.ExternalID)
	require.NotNil(t, stored)
	assert.Equal(t, order.StatusPending, stored.Status)
	assert.Equal(t, int64(250000), stored.Amount)
	assert.Equal(t, res.InvoiceURL, stored.XenditInvoiceURL)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, "siti@example.com", stored.CustomerEmail)

	// 下单成功通知入队，携带支付链接
	msgs := disp.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindOrderCreated, msgs[0].Kind)
	assert.Equal(t, "6281234567890", msgs[0].To)
	assert.Equal(t, res.InvoiceURL, msgs[0].Vars["invoice_url"])
	assert.Equal(t, "Rp 250.000", msgs[0].Vars["amount"])
}

func TestCheckoutValidation(t *testing.T) {
	svc, repo, gw, _ := newCheckoutFixture(t)

	cases := []struct {
		name   string
		mutate func(*CheckoutRequest)
	}{
		{"zero total", func(r *CheckoutRequest) { r.Total = 0 }},
		{"negative total", func(r *CheckoutRequest) { r.Total = -100 }},
		{"empty items", func(r *CheckoutRequest) { r.Items = nil }},
		{"blank item name", func(r *CheckoutRequest) { r.Items[0].Name = "  " }},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[1].Quantity = 0 }},
		{"negative price", func(r *CheckoutRequest) { r.Items[0].Price = -1 }},
		{"bad email", func(r *CheckoutRequest) { r.CustomerEmail = "not-an-email" }},
		{"missing email", func(r *CheckoutRequest) { r.CustomerEmail = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCheckoutRequest()
			tc.mutate(req)
			_, err := svc.Checkout(context.Background(), req)
			assert.True(t, errs.IsValidation(err), "expected validation error, got %v", err)
		})
	}

	// 校验失败不得触达网关和存储
	assert.Equal(t, 0, gw.callCount())
	assert.Equal(t, 0, repo.count())
}

func TestCheckoutGatewayFailureLeavesNoOrder(t *testing.T) {
	svc, repo, gw, disp := newCheckoutFixture(t)
	gw.fail = true

	_, err := svc.Checkout(context.Background(), validCheckoutRequest())
	require.ErrorIs(t, err, errs.ErrGateway)
	assert.Equal(t, 0, repo.count(), "no unpayable PENDING order may be left behind")
	assert.Len(t, disp.messages(), 0)
}

func TestCheckoutRetriesOnExternalIDConflict(t *testing.T) {
	svc, repo, gw, _ := newCheckoutFixture(t)
	repo.failCreates = 1

	res, err := svc.Checkout(context.Background(), validCheckoutRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, gw.callCount(), "fresh invoice per attempt")
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, order.StatusPending, repo.stored(res.ExternalID).Status)
}

func TestCheckoutGivesUpAfterPersistentConflict(t *testing.T) {
	svc, repo, _, _ := newCheckoutFixture(t)
	repo.failCreates = externalIDRetries

	_, err := svc.Checkout(context.Background(), validCheckoutRequest())
	require.ErrorIs(t, err, errs.ErrStore)
	assert.Equal(t, 0, repo.count())
}

func TestCheckoutWithoutPhoneSkipsNotification(t *testing.T) {
	svc, _, _, disp := newCheckoutFixture(t)
	req := validCheckoutRequest()
	req.CustomerPhone = ""

	_, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, disp.messages(), 0)
}

func TestCheckoutDispatchFailureDoesNotFailOrder(t *testing.T) {
	svc, repo, _, disp := newCheckoutFixture(t)
	disp.fail = true

	res, err := svc.Checkout(context.Background(), validCheckoutRequest())
	require.NoError(t, err)
	assert.NotNil(t, repo.stored(res.ExternalID))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Budi", displayName("Budi"))
	assert.Equal(t, "Customer", displayName(""))
	assert.Equal(t, "Customer", displayName("   "))
}
