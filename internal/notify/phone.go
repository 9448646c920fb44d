package notify

import "strings"

// NormalizePhone 将手机号归一化为国际格式数字串（不含 + 号）：
// 去掉所有非数字字符；以 0 开头视为本地号码，替换为国家码；
// 没有国家码前缀的一律补上。已带国家码的保持不变。
func NormalizePhone(raw, defaultCC string) string {
	if defaultCC == "" {
		defaultCC = "62"
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return ""
	}
	if strings.HasPrefix(clean, "0") {
		return defaultCC + clean[1:]
	}
	if !strings.HasPrefix(clean, defaultCC) {
		return defaultCC + clean
	}
	return clean
}
