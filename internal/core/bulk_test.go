package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/crawlers"
)

// bulkSite 模拟一组商品页, 记录抓取器的创建和关闭
type bulkSite struct {
	mu          sync.Mutex
	attempts    map[string]int
	failFirst   map[string]int  // 前n次返回ErrNoPrice
	panicOnce   map[string]bool // 第一次抓取时panic
	factoryErrs int             // 前n次创建抓取器失败
	built       int
	closed      int
}

func newBulkSite() *bulkSite {
	return &bulkSite{
		attempts:  make(map[string]int),
		failFirst: make(map[string]int),
		panicOnce: make(map[string]bool),
	}
}

func (s *bulkSite) factory(worker int) (WorkerScraper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.factoryErrs > 0 {
		s.factoryErrs--
		return nil, errors.New("browser launch failed")
	}
	s.built++
	return &bulkScraper{site: s}, nil
}

type bulkScraper struct {
	site *bulkSite
}

func (b *bulkScraper) ScrapePrice(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s := b.site
	s.mu.Lock()
	s.attempts[url]++
	n := s.attempts[url]
	if s.panicOnce[url] {
		delete(s.panicOnce, url)
		s.mu.Unlock()
		panic("engine died")
	}
	fail := n <= s.failFirst[url]
	s.mu.Unlock()

	if fail {
		return "", crawlers.ErrNoPrice
	}
	return "1299", nil
}

func (b *bulkScraper) Close() error {
	b.site.mu.Lock()
	b.site.closed++
	b.site.mu.Unlock()
	return nil
}

type fixedLimiter int

func (l fixedLimiter) ClampWorkers(requested int) int {
	if requested > int(l) {
		return int(l)
	}
	return requested
}

func testURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://www.ozon.ru/product/%d/", i+1)
	}
	return urls
}

func newTestBulk(site *bulkSite, limiter WorkerLimiter, opts BulkOptions) *BulkScrapeOrchestrator {
	b := NewBulkScrapeOrchestrator(site.factory, limiter, crawlers.NewTrafficStats(), opts)
	b.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return b
}

func TestBulkRunAllSucceed(t *testing.T) {
	site := newBulkSite()
	urls := testURLs(7)
	b := newTestBulk(site, fixedLimiter(2), BulkOptions{Workers: 4, RetryCeiling: 10, StartInterval: time.Second})

	report, err := b.Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Workers != 2 {
		t.Errorf("Workers = %d, 期望受资源限制为 2", report.Workers)
	}
	if report.Succeeded != 7 || report.Failed != 0 {
		t.Errorf("成功/失败 = %d/%d", report.Succeeded, report.Failed)
	}
	for i, res := range report.Results {
		if res.URL != urls[i] {
			t.Errorf("结果顺序错误: [%d] %s != %s", i, res.URL, urls[i])
		}
		if res.Price != "1299" || res.Pass != 1 {
			t.Errorf("结果 = %+v", res)
		}
	}
	if site.built < 1 || site.built > 2 || site.built != site.closed {
		t.Errorf("抓取器 创建/关闭 = %d/%d", site.built, site.closed)
	}
}

func TestBulkRunRetriesFewFailures(t *testing.T) {
	site := newBulkSite()
	urls := testURLs(5)
	site.failFirst[urls[3]] = 1
	b := newTestBulk(site, nil, BulkOptions{Workers: 2, RetryCeiling: 10})

	report, err := b.Run(context.Background(), urls)
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 5 {
		t.Errorf("重试后应全部成功, 实际 %d", report.Succeeded)
	}
	if res := report.Results[3]; res.Pass != 2 || !res.Success {
		t.Errorf("重试结果 = %+v", res)
	}
	if site.attempts[urls[3]] != 2 {
		t.Errorf("失败URL抓取次数 = %d, 期望 2", site.attempts[urls[3]])
	}
	// 每轮结束时worker关闭自己的抓取器
	if site.built < 2 || site.built != site.closed {
		t.Errorf("抓取器 创建/关闭 = %d/%d", site.built, site.closed)
	}
}

func TestBulkRunSkipsRetryAboveCeiling(t *testing.T) {
	site := newBulkSite()
	urls := testURLs(4)
	for _, u := range urls[:3] {
		site.failFirst[u] = 1
	}
	b := newTestBulk(site, nil, BulkOptions{Workers: 2, RetryCeiling: 3})

	report, err := b.Run(context.Background(), urls)
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 3 {
		t.Errorf("失败数 = %d, 期望 3", report.Failed)
	}
	if got := len(report.FailedURLs()); got != 3 {
		t.Errorf("FailedURLs() = %d", got)
	}
	for _, u := range urls[:3] {
		if site.attempts[u] != 1 {
			t.Errorf("%s 不应重试", u)
		}
	}
}

func TestBulkWorkerRebuildsAfterPanic(t *testing.T) {
	site := newBulkSite()
	urls := testURLs(3)
	site.panicOnce[urls[0]] = true
	b := newTestBulk(site, nil, BulkOptions{Workers: 1, RetryCeiling: 0})

	report, err := b.Run(context.Background(), urls)
	if err != nil {
		t.Fatal(err)
	}
	if report.Results[0].Success {
		t.Error("panic的URL应记录为失败")
	}
	if report.Succeeded != 2 {
		t.Errorf("其余URL应继续处理, 成功 %d", report.Succeeded)
	}
	if site.built != 2 || site.closed != 2 {
		t.Errorf("抓取器 创建/关闭 = %d/%d, 期望 2/2", site.built, site.closed)
	}
}

func TestBulkWorkerSurvivesFactoryError(t *testing.T) {
	site := newBulkSite()
	site.factoryErrs = 1
	urls := testURLs(3)
	b := newTestBulk(site, nil, BulkOptions{Workers: 1, RetryCeiling: 10})

	report, err := b.Run(context.Background(), urls)
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 3 {
		t.Errorf("创建失败的URL应在重试轮成功, 成功 %d", report.Succeeded)
	}
}

func TestBulkRunEmpty(t *testing.T) {
	b := newTestBulk(newBulkSite(), nil, BulkOptions{Workers: 1})
	if _, err := b.Run(context.Background(), nil); err == nil {
		t.Error("空URL列表应返回错误")
	}
}

func TestBulkRunCancelled(t *testing.T) {
	site := newBulkSite()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := newTestBulk(site, nil, BulkOptions{Workers: 2, RetryCeiling: 10})
	report, err := b.Run(ctx, testURLs(4))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
	if report == nil || report.Succeeded != 0 || len(report.Results) != 4 {
		t.Errorf("取消后报告 = %+v", report)
	}
}
