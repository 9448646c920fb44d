package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/example/paygate/internal/config"
)

// TwilioNotifier 通过 Twilio WhatsApp 渠道发送通知。
// 支付成功走审核过的内容模板，其余消息用普通文本。
type TwilioNotifier struct {
	cli *twilio.RestClient
	cfg *config.TwilioConfig
}

// NewTwilioNotifier 创建 Twilio 通知客户端
func NewTwilioNotifier(cfg *config.TwilioConfig) *TwilioNotifier {
	cli := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioNotifier{cli: cli, cfg: cfg}
}

func (n *TwilioNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("empty destination phone")
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(n.cfg.WhatsappFrom)
	params.SetTo("whatsapp:+" + msg.To)

	switch msg.Kind {
	case KindPaymentSuccess:
		// 模板："Your payment with the total of {{amount}} for order
		// {{order_number}} have successfully confirmed!"
		vars, err := json.Marshal(msg.Vars)
		if err != nil {
			return fmt.Errorf("marshal content variables: %w", err)
		}
		params.SetContentSid(n.cfg.PaymentSuccessTemplateSID)
		params.SetContentVariables(string(vars))
	case KindOrderCreated:
		params.SetBody(fmt.Sprintf(
			"Hi %s, we received your order %s (%s). Complete the payment here: %s",
			msg.Vars["customer_name"], msg.Vars["order_number"], msg.Vars["amount"], msg.Vars["invoice_url"],
		))
	case KindVerification:
		params.SetBody(fmt.Sprintf(
			"Your verification code is: %s. This code will expire in 10 minutes.",
			msg.Vars["code"],
		))
	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}

	resp, err := n.cli.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send %s to +%s: %w", msg.Kind, msg.To, err)
	}
	if resp.Sid != nil {
		log.Printf("whatsapp %s sent, sid=%s", msg.Kind, *resp.Sid)
	}
	return nil
}
