package service

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	orderNumberPrefix = "HOL"
	base36Alphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateOrderNumber HOL-<毫秒時間戳 base36>-<4 碼隨機>, 不保證全域唯一, 由 DB unique index 把關
func GenerateOrderNumber(now time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = base36Alphabet[rand.Intn(len(base36Alphabet))]
	}
	return orderNumberPrefix + "-" + ts + "-" + string(suffix)
}
