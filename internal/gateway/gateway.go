package gateway

import "context"

// CreateInvoiceRequest 创建托管收银台页面所需的参数
type CreateInvoiceRequest struct {
	ExternalID  string
	Amount      int64 // 印尼盾，最小单位
	PayerEmail  string
	Description string
}

// Invoice 网关返回的发票信息
type Invoice struct {
	ID  string // 网关侧发票 ID
	URL string // 托管支付页地址
}

// InvoiceGateway 发票网关。实现以注入方式下发，便于测试替换，
// 也避免每个请求重复构造客户端。
type InvoiceGateway interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
}
