package errs

import (
	"errors"
	"fmt"
)

// 业务错误分级：API 层据此映射 HTTP 状态码，
// 对外响应不透出底层驱动的错误细节。
var (
	// ErrUnauthorized 回调令牌或登录凭证不合法
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound 未匹配到目标记录
	ErrNotFound = errors.New("not found")
	// ErrConflict 记录已存在
	ErrConflict = errors.New("conflict")
	// ErrGateway 发票网关调用失败
	ErrGateway = errors.New("gateway error")
	// ErrStore 持久层不可用，调用方（支付网关）应重试
	ErrStore = errors.New("store error")
)

// ValidationError 入参不合法，不应重试
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Invalid 构造字段校验错误
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
