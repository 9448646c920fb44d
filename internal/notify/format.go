package notify

import "strconv"

// FormatRupiah 按印尼习惯格式化金额，如 150000 -> "Rp 150.000"
func FormatRupiah(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var out []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, d)
	}
	s := "Rp " + string(out)
	if neg {
		s = "-" + s
	}
	return s
}
