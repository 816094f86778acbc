package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/crawlers"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

// WorkerScraper 一个worker独占的抓取器
type WorkerScraper interface {
	PriceScraper
	Close() error
}

// ScraperFactory 为worker创建抓取器
type ScraperFactory func(worker int) (WorkerScraper, error)

// WorkerLimiter 根据机器资源限制worker数
type WorkerLimiter interface {
	ClampWorkers(requested int) int
}

// BulkOptions 批量抓取参数
type BulkOptions struct {
	Workers       int           // 请求的worker数
	RetryCeiling  int           // 失败数少于该值时重试一轮, 0为不重试
	RebuildDelay  time.Duration // 抓取器出错后重建前的等待
	StartInterval time.Duration // worker错开启动的间隔
	ShowProgress  bool
}

// BulkScrapeOrchestrator 批量抓取编排器
// 任务channel → 固定数量的worker → 结果channel → 单个聚合者
type BulkScrapeOrchestrator struct {
	newScraper ScraperFactory
	limiter    WorkerLimiter
	traffic    *crawlers.TrafficStats
	opts       BulkOptions

	sleep func(ctx context.Context, d time.Duration) error
}

// NewBulkScrapeOrchestrator 创建批量抓取编排器, limiter可为nil
func NewBulkScrapeOrchestrator(newScraper ScraperFactory, limiter WorkerLimiter, traffic *crawlers.TrafficStats, opts BulkOptions) *BulkScrapeOrchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &BulkScrapeOrchestrator{
		newScraper: newScraper,
		limiter:    limiter,
		traffic:    traffic,
		opts:       opts,
		sleep:      utils.Sleep,
	}
}

// Run 抓取全部URL, 首轮失败较少时重试一轮
// 结果顺序与输入一致, 每个URL一条
func (b *BulkScrapeOrchestrator) Run(ctx context.Context, urls []string) (*models.BulkReport, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("URL列表为空")
	}
	report := &models.BulkReport{
		RunID:     models.NewRunID(),
		StartTime: time.Now(),
		TotalURLs: len(urls),
	}

	workers := b.opts.Workers
	if b.limiter != nil {
		workers = b.limiter.ClampWorkers(workers)
	}
	if workers > len(urls) {
		workers = len(urls)
	}
	report.Workers = workers

	utils.Info("========================================")
	utils.Infof("🚀 开始批量抓取: %d个URL, %d个worker", len(urls), workers)
	utils.Info("========================================")

	byURL := make(map[string]models.ScrapeResult, len(urls))
	for _, res := range b.runPass(ctx, urls, 1, workers) {
		byURL[res.URL] = res
	}

	var failed []string
	for _, u := range urls {
		if res, ok := byURL[u]; !ok || !res.Success {
			failed = append(failed, u)
		}
	}

	if len(failed) > 0 && len(failed) < b.opts.RetryCeiling && ctx.Err() == nil {
		utils.Infof("🔄 首轮失败 %d 个, 使用新的worker重试", len(failed))
		retryWorkers := workers
		if retryWorkers > len(failed) {
			retryWorkers = len(failed)
		}
		for _, res := range b.runPass(ctx, failed, 2, retryWorkers) {
			byURL[res.URL] = res
		}
	} else if len(failed) >= b.opts.RetryCeiling && len(failed) > 0 {
		utils.Warnf("⚠️  失败数 %d 达到重试上限 %d, 不再重试", len(failed), b.opts.RetryCeiling)
	}

	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		res, ok := byURL[u]
		if !ok {
			res = models.ScrapeResult{URL: u, Error: "未处理"}
		}
		report.Results = append(report.Results, res)
		if res.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	report.TotalURLs = len(report.Results)

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime).Seconds()
	if b.traffic != nil {
		report.Traffic = b.traffic.Snapshot()
	}

	utils.PrintBulkSummary(report)
	return report, ctx.Err()
}

// runPass 用一批新的worker处理一轮任务
func (b *BulkScrapeOrchestrator) runPass(ctx context.Context, urls []string, pass, workers int) []models.ScrapeResult {
	queue := crawlers.NewWorkQueue(len(urls))
	for _, u := range urls {
		if err := queue.Push(ctx, models.ScrapeJob{URL: u, Pass: pass}); err != nil {
			utils.Debugf("跳过入队: %v", err)
		}
	}
	queue.Close()

	results := make(chan models.ScrapeResult, workers)
	var wg sync.WaitGroup

	var bar interface{ Add(int) error }
	if b.opts.ShowProgress {
		bar = utils.NewProgressBar(len(urls), fmt.Sprintf("第%d轮抓取", pass))
	}

	for i := 0; i < workers; i++ {
		if i > 0 && b.opts.StartInterval > 0 {
			if err := b.sleep(ctx, b.opts.StartInterval); err != nil {
				break
			}
		}
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			b.worker(ctx, id, queue, results)
		}(i + 1)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]models.ScrapeResult, 0, len(urls))
	for res := range results {
		collected = append(collected, res)
		if bar != nil {
			bar.Add(1)
		}
	}
	return collected
}

// worker 消费队列直到关闭, 抓取器出错时只重建自己的抓取器
func (b *BulkScrapeOrchestrator) worker(ctx context.Context, id int, queue *crawlers.WorkQueue, results chan<- models.ScrapeResult) {
	var scraper WorkerScraper
	defer func() {
		if scraper != nil {
			scraper.Close()
		}
	}()

	utils.Debugf("[worker %d] 启动", id)
	for {
		job, ok := queue.Pop(ctx)
		if !ok {
			return
		}

		res, rebuild := b.scrapeOne(ctx, id, &scraper, job)
		results <- res

		if rebuild && scraper != nil {
			scraper.Close()
			scraper = nil
		}
		if rebuild {
			if err := b.sleep(ctx, b.opts.RebuildDelay); err != nil {
				return
			}
		}
	}
}

// scrapeOne 处理一个任务, panic转为失败结果
// 返回值rebuild表示该worker的抓取器需要重建
func (b *BulkScrapeOrchestrator) scrapeOne(ctx context.Context, id int, scraper *WorkerScraper, job models.ScrapeJob) (res models.ScrapeResult, rebuild bool) {
	start := time.Now()
	res = models.ScrapeResult{URL: job.URL, Worker: id, Pass: job.Pass, ScrapedAt: start}

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("💥 [worker %d] 抓取崩溃: %v", id, r)
			res.Success = false
			res.Error = fmt.Sprintf("%v: %v", crawlers.ErrEngineCrashed, r)
			rebuild = true
		}
		res.Duration = time.Since(start).Seconds()
	}()

	if *scraper == nil {
		s, err := b.newScraper(id)
		if err != nil {
			res.Error = fmt.Sprintf("创建抓取器失败: %v", err)
			utils.Errorf("❌ [worker %d] %s", id, res.Error)
			return res, true
		}
		*scraper = s
	}

	price, err := (*scraper).ScrapePrice(ctx, job.URL)
	if err != nil {
		res.Error = err.Error()
		if errors.Is(err, crawlers.ErrNoPrice) || ctx.Err() != nil {
			utils.Warnf("⚠️  [worker %d] 未获取到价格: %s", id, job.URL)
			return res, false
		}
		utils.Errorf("❌ [worker %d] 抓取失败: %s: %v", id, job.URL, err)
		return res, true
	}

	res.Price = price
	res.Success = true
	utils.Infof("✅ [worker %d] %s → %s", id, job.URL, price)
	return res, false
}
