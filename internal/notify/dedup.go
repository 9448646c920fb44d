package notify

import (
	"fmt"
	"strconv"

	radix "github.com/mediocregopher/radix/v3"
)

// SuccessMark 支付成功通知的发送去重标记。
// Claim 用单条 SET NX EX 原子占位：占位和 TTL 一起生效，
// 进程在两步之间崩溃不会留下永不过期的键。
type SuccessMark struct {
	redis      radix.Client
	ttlSeconds int
}

// NewSuccessMark 创建去重标记器
func NewSuccessMark(redis radix.Client, ttlSeconds int) *SuccessMark {
	if ttlSeconds <= 0 {
		ttlSeconds = 86400
	}
	return &SuccessMark{redis: redis, ttlSeconds: ttlSeconds}
}

func successMarkKey(externalID string) string {
	return "notify:succ:" + externalID
}

// Claim 占用 externalID 的发送资格，已被占用时返回 false
func (m *SuccessMark) Claim(externalID string) (bool, error) {
	var reply string
	mn := radix.MaybeNil{Rcv: &reply}
	err := m.redis.Do(radix.Cmd(&mn, "SET",
		successMarkKey(externalID), "1", "NX", "EX", strconv.Itoa(m.ttlSeconds)))
	if err != nil {
		return false, fmt.Errorf("claim notify mark for %s: %w", externalID, err)
	}
	return !mn.Nil && reply == "OK", nil
}

// Release 发送失败时回滚占位，让重投还有机会发出去
func (m *SuccessMark) Release(externalID string) {
	_ = m.redis.Do(radix.Cmd(nil, "DEL", successMarkKey(externalID)))
}
