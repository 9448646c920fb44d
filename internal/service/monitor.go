package service

import (
	"sync"
	"time"
)

// Monitor 进程内计数器，供后台监控接口查看运行状况
type Monitor struct {
	mu sync.RWMutex

	// 下单侧
	CheckoutRequests int64
	CheckoutSuccess  int64
	GatewayErrors    int64

	// 对账侧
	WebhookReceived int64
	WebhookApplied  int64
	WebhookIgnored  int64
	WebhookRejected int64
	StoreErrors     int64

	// 通知侧
	NotifyEnqueued int64
	NotifyErrors   int64

	LastGatewayError time.Time
	LastStoreError   time.Time
	LastWebhookTime  time.Time
}

var globalMonitor = &Monitor{}

// GetMonitor 获取全局监控实例
func GetMonitor() *Monitor {
	return globalMonitor
}

func (m *Monitor) RecordCheckoutRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckoutRequests++
}

func (m *Monitor) RecordCheckoutSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckoutSuccess++
}

func (m *Monitor) RecordGatewayError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GatewayErrors++
	m.LastGatewayError = time.Now()
}

func (m *Monitor) RecordWebhookReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookReceived++
	m.LastWebhookTime = time.Now()
}

func (m *Monitor) RecordWebhookApplied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookApplied++
}

func (m *Monitor) RecordWebhookIgnored() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookIgnored++
}

func (m *Monitor) RecordWebhookRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookRejected++
}

func (m *Monitor) RecordStoreError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoreErrors++
	m.LastStoreError = time.Now()
}

func (m *Monitor) RecordNotifyEnqueued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotifyEnqueued++
}

func (m *Monitor) RecordNotifyError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotifyErrors++
}

// Snapshot 拷贝一份当前计数
func (m *Monitor) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"checkout_requests": m.CheckoutRequests,
		"checkout_success":  m.CheckoutSuccess,
		"gateway_errors":    m.GatewayErrors,
		"webhook_received":  m.WebhookReceived,
		"webhook_applied":   m.WebhookApplied,
		"webhook_ignored":   m.WebhookIgnored,
		"webhook_rejected":  m.WebhookRejected,
		"store_errors":      m.StoreErrors,
		"notify_enqueued":   m.NotifyEnqueued,
		"notify_errors":     m.NotifyErrors,
	}
}
