package utils

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{MaxAttempts: 3, Base: 2 * time.Second, Ceiling: 60 * time.Second}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"第1次", 1, 2 * time.Second},
		{"第2次", 2, 4 * time.Second},
		{"第3次", 3, 8 * time.Second},
		{"达到上限", 10, 60 * time.Second},
		{"非法次数按1计算", 0, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, 期望 %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffJitterBounded(t *testing.T) {
	b := Backoff{Base: time.Second, Ceiling: 10 * time.Second, Jitter: 500 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		if d < time.Second || d >= 1500*time.Millisecond {
			t.Fatalf("抖动超出范围: %v", d)
		}
	}
}

func TestBackoffCap(t *testing.T) {
	b := DefaultBackoff()
	if got := b.Cap(5 * time.Minute); got != 60*time.Second {
		t.Errorf("Cap应限制在上限内, 得到 %v", got)
	}
	if got := b.Cap(3 * time.Second); got != 3*time.Second {
		t.Errorf("Cap不应修改较小值, 得到 %v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"秒数", "7", 7 * time.Second, true},
		{"HTTP日期", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second, true},
		{"过去的日期", now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"缺失", "", 0, false},
		{"无法解析", "soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			got, ok := ParseRetryAfter(h, now)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = (%v, %v), 期望 (%v, %v)", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Fatal("已取消的ctx应返回错误")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep没有立即返回")
	}
}

func TestDelayRangePick(t *testing.T) {
	r := NewDelayRange(2, 4)
	for i := 0; i < 100; i++ {
		d := r.Pick()
		if d < 2*time.Second || d > 4*time.Second {
			t.Fatalf("Pick超出区间: %v", d)
		}
	}

	fixed := DelayRange{Min: time.Second, Max: time.Second}
	if fixed.Pick() != time.Second {
		t.Error("上下限相等时应返回固定值")
	}

	if err := (DelayRange{Min: 3 * time.Second, Max: time.Second}).Validate(); err == nil {
		t.Error("上限小于下限应校验失败")
	}
}
