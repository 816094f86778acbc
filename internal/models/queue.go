package models

// ScrapeJob 批量抓取队列中的一项
type ScrapeJob struct {
	// URL 商品页地址
	URL string

	// Pass 第几轮(1为首轮,2为失败重试轮)
	Pass int
}
