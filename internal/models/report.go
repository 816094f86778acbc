package models

import (
	"encoding/json"
	"time"
)

// ScrapeResult 单个URL的抓取结果
type ScrapeResult struct {
	URL       string    `json:"url"`
	Price     string    `json:"price,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Worker    int       `json:"worker"`
	Pass      int       `json:"pass"`
	Duration  float64   `json:"duration"` // 秒
	ScrapedAt time.Time `json:"scraped_at"`
}

// TrafficSnapshot 流量快照
type TrafficSnapshot struct {
	BytesSent     int64                 `json:"bytes_sent"`
	BytesReceived int64                 `json:"bytes_received"`
	PerURL        map[string]URLTraffic `json:"per_url,omitempty"`
}

// URLTraffic 单个URL的流量
type URLTraffic struct {
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
	Requests int   `json:"requests"`
}

// BulkReport 批量抓取报告
type BulkReport struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	TotalURLs int `json:"total_urls"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Workers   int `json:"workers"`

	Results []ScrapeResult  `json:"results"`
	Traffic TrafficSnapshot `json:"traffic"`
}

// FailedURLs 失败的URL列表
func (r *BulkReport) FailedURLs() []string {
	var urls []string
	for _, res := range r.Results {
		if !res.Success {
			urls = append(urls, res.URL)
		}
	}
	return urls
}

// ToJSON 序列化为JSON
func (r *BulkReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
