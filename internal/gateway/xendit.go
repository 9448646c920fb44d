package gateway

import (
	"context"
	"fmt"
	"time"

	xenclient "github.com/xendit/xendit-go/client"
	"github.com/xendit/xendit-go/invoice"

	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/errs"
)

// 网关调用超时：发票创建是下单主链路的一环，超时直接当失败处理
const createInvoiceTimeout = 10 * time.Second

// XenditGateway 基于官方 SDK 的发票网关实现
type XenditGateway struct {
	cli *xenclient.API
	cfg *config.XenditConfig
}

// NewXenditGateway 创建 Xendit 网关客户端
func NewXenditGateway(cfg *config.XenditConfig) *XenditGateway {
	return &XenditGateway{
		cli: xenclient.New(cfg.SecretKey),
		cfg: cfg,
	}
}

func (g *XenditGateway) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, createInvoiceTimeout)
	defer cancel()

	duration := g.cfg.InvoiceDurationSeconds
	if duration <= 0 {
		duration = 86400
	}

	inv, err := g.cli.Invoice.CreateWithContext(ctx, &invoice.CreateParams{
		ExternalID:         req.ExternalID,
		Amount:             float64(req.Amount),
		PayerEmail:         req.PayerEmail,
		Description:        req.Description,
		InvoiceDuration:    duration,
		Currency:           "IDR",
		SuccessRedirectURL: g.cfg.SuccessRedirectURL,
		FailureRedirectURL: g.cfg.FailureRedirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create invoice %s: %v", errs.ErrGateway, req.ExternalID, err)
	}
	return &Invoice{ID: inv.ID, URL: inv.InvoiceURL}, nil
}
