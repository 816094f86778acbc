package crawlers

import (
	"sync"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/metrics"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
)

// TrafficStats 流量统计, 全局和按URL累计
// 多个worker共享同一实例
type TrafficStats struct {
	mu       sync.Mutex
	sent     int64
	received int64
	perURL   map[string]*models.URLTraffic
}

// NewTrafficStats 创建流量统计
func NewTrafficStats() *TrafficStats {
	return &TrafficStats{perURL: make(map[string]*models.URLTraffic)}
}

// Add 记录一次请求的流量
func (t *TrafficStats) Add(url string, sent, received int64) {
	if t == nil {
		return
	}
	if sent < 0 {
		sent = 0
	}
	if received < 0 {
		received = 0
	}

	t.mu.Lock()
	t.sent += sent
	t.received += received
	entry, ok := t.perURL[url]
	if !ok {
		entry = &models.URLTraffic{}
		t.perURL[url] = entry
	}
	entry.Sent += sent
	entry.Received += received
	entry.Requests++
	t.mu.Unlock()

	metrics.TrafficBytes.WithLabelValues("sent").Add(float64(sent))
	metrics.TrafficBytes.WithLabelValues("received").Add(float64(received))
}

// Totals 全局累计
func (t *TrafficStats) Totals() (sent, received int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent, t.received
}

// Snapshot 复制当前统计
func (t *TrafficStats) Snapshot() models.TrafficSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := models.TrafficSnapshot{
		BytesSent:     t.sent,
		BytesReceived: t.received,
		PerURL:        make(map[string]models.URLTraffic, len(t.perURL)),
	}
	for url, entry := range t.perURL {
		snap.PerURL[url] = *entry
	}
	return snap
}
