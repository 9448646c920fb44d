package notify

import "context"

// 消息类型
const (
	KindPaymentSuccess = "payment_success"
	KindOrderCreated   = "order_created"
	KindVerification   = "verification"
)

// Message 一条待发送的 WhatsApp 通知。
// To 为已归一化的国际格式号码（不含 + 号），ExternalID 仅支付成功类消息携带，
// 作为去重键防止 MQ 重投导致重复发送。
type Message struct {
	Kind       string            `json:"kind"`
	To         string            `json:"to"`
	ExternalID string            `json:"external_id,omitempty"`
	Vars       map[string]string `json:"vars"`
}

// Notifier 通知发送方。失败只返回 error 交调用方记录，
// 不影响触发它的主流程。
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
