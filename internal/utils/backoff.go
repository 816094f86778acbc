package utils

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff 重试退避策略
// 抓取重试和接口提交共用
type Backoff struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Base        time.Duration `mapstructure:"base"`
	Ceiling     time.Duration `mapstructure:"ceiling"`
	Jitter      time.Duration `mapstructure:"jitter"`
}

// DefaultBackoff 默认退避: 3次, 2s起, 上限60s
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts: 3,
		Base:        2 * time.Second,
		Ceiling:     60 * time.Second,
	}
}

// Delay 第attempt次(从1开始)失败后的等待时间
// Base·2^(attempt-1), 不超过Ceiling, 再加[0, Jitter)的随机抖动
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Ceiling > 0 && d >= b.Ceiling {
			d = b.Ceiling
			break
		}
	}
	if b.Ceiling > 0 && d > b.Ceiling {
		d = b.Ceiling
	}
	if b.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return d
}

// Cap 把外部给出的等待时间(例如Retry-After)限制在Ceiling内
func (b Backoff) Cap(d time.Duration) time.Duration {
	if b.Ceiling > 0 && d > b.Ceiling {
		return b.Ceiling
	}
	return d
}

// Sleep 可被ctx取消的睡眠
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter 解析Retry-After头: 秒数或HTTP日期
func ParseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
