package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/crawlers"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/pricing"
)

// scriptedScraper 按URL依次返回预设价格, 空字符串表示找不到价格
type scriptedScraper struct {
	mu      sync.Mutex
	prices  map[string][]string
	visits  []string
	onVisit func(url string) error
}

func (s *scriptedScraper) ScrapePrice(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, url)
	if s.onVisit != nil {
		if err := s.onVisit(url); err != nil {
			return "", err
		}
	}
	queue := s.prices[url]
	if len(queue) == 0 {
		return "", crawlers.ErrNoPrice
	}
	next := queue[0]
	if len(queue) > 1 {
		s.prices[url] = queue[1:]
	}
	if next == "" {
		return "", crawlers.ErrNoPrice
	}
	return next, nil
}

type recordingSubmitter struct {
	quotes []models.PriceQuote
	offers []string
	err    error
}

func (r *recordingSubmitter) SubmitPrice(ctx context.Context, offerID string, quote models.PriceQuote) error {
	r.offers = append(r.offers, offerID)
	r.quotes = append(r.quotes, quote)
	return r.err
}

func workLine(id, url string) string {
	return id + " SKU" + id + " OFF-" + id + " 0.00% 1000 1200 900 1000 1000 Электрический чайник " + url
}

func newTestOrchestrator(t *testing.T, scraper PriceScraper, submitter PriceSubmitter, opts CorrectionOptions) (*CorrectionOrchestrator, *[]time.Duration) {
	t.Helper()
	engine, err := pricing.NewEngine(models.DefaultConditions())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	o := NewCorrectionOrchestrator(scraper, submitter, engine, opts)
	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return o, &sleeps
}

func TestProcessItemConvergesOnThirdScrape(t *testing.T) {
	url := "https://www.ozon.ru/product/1/"
	scraper := &scriptedScraper{prices: map[string][]string{url: {"1200", "1150", "1040"}}}
	submitter := &recordingSubmitter{}
	o, _ := newTestOrchestrator(t, scraper, submitter, DefaultCorrectionOptions())

	item, err := models.ParseWorkItem(workLine("1", url), 1)
	if err != nil {
		t.Fatal(err)
	}

	state, err := o.ProcessItem(context.Background(), item)
	if err != nil {
		t.Fatalf("ProcessItem() error = %v", err)
	}
	if state != models.ItemInTolerance {
		t.Fatalf("状态 = %s, 期望 %s", state, models.ItemInTolerance)
	}
	if item.Attempts != 3 {
		t.Errorf("尝试次数 = %d, 期望 3", item.Attempts)
	}
	if len(submitter.quotes) != 2 {
		t.Fatalf("提交次数 = %d, 期望 2", len(submitter.quotes))
	}
	if item.MarketPrice != 1040 {
		t.Errorf("店面价 = %.0f, 期望 1040", item.MarketPrice)
	}
	if item.Deviation != 4 {
		t.Errorf("偏差 = %.2f, 期望 4", item.Deviation)
	}

	last := submitter.quotes[1]
	if item.BasePrice != float64(last.Price) || item.OldPrice != float64(last.OldPrice) || item.MinPrice != float64(last.MinPrice) {
		t.Errorf("商品价格未更新为最后一次提交: item=%v/%v/%v quote=%s", item.BasePrice, item.OldPrice, item.MinPrice, last)
	}
	for _, q := range submitter.quotes {
		if !q.Valid() {
			t.Errorf("提交了无效价格: %s", q)
		}
	}
}

func TestProcessItemQuotesFromTrackedBase(t *testing.T) {
	url := "https://www.ozon.ru/product/2/"
	scraper := &scriptedScraper{prices: map[string][]string{url: {"1200", "1200"}}}
	submitter := &recordingSubmitter{}
	opts := DefaultCorrectionOptions()
	opts.MaxAttempts = 2
	o, _ := newTestOrchestrator(t, scraper, submitter, opts)

	item, _ := models.ParseWorkItem(workLine("2", url), 1)
	if _, err := o.ProcessItem(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	engine, _ := pricing.NewEngine(models.DefaultConditions())
	cond := engine.SelectCondition(20)
	first := engine.ComputeQuote(1000, cond)
	second := engine.ComputeQuote(float64(first.Price), cond)

	if len(submitter.quotes) != 2 {
		t.Fatalf("提交次数 = %d, 期望 2", len(submitter.quotes))
	}
	if submitter.quotes[0] != first || submitter.quotes[1] != second {
		t.Errorf("报价 = %v, 期望 [%s %s]", submitter.quotes, first, second)
	}
}

func TestProcessItemNoPriceConsumesAttempts(t *testing.T) {
	scraper := &scriptedScraper{prices: map[string][]string{}}
	submitter := &recordingSubmitter{}
	o, sleeps := newTestOrchestrator(t, scraper, submitter, DefaultCorrectionOptions())

	item, _ := models.ParseWorkItem(workLine("3", "https://www.ozon.ru/product/3/"), 1)
	state, err := o.ProcessItem(context.Background(), item)
	if err != nil {
		t.Fatal(err)
	}
	if state != models.ItemExhausted {
		t.Errorf("状态 = %s, 期望 %s", state, models.ItemExhausted)
	}
	if len(scraper.visits) != 5 {
		t.Errorf("抓取次数 = %d, 期望 5", len(scraper.visits))
	}
	if len(submitter.quotes) != 0 {
		t.Errorf("不应提交, 实际 %d 次", len(submitter.quotes))
	}
	if len(*sleeps) != 4 {
		t.Fatalf("等待次数 = %d, 期望 4", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != 20*time.Second {
			t.Errorf("等待 = %s, 期望 20s", d)
		}
	}
}

func TestProcessItemSubmitFailureContinues(t *testing.T) {
	url := "https://www.ozon.ru/product/4/"
	scraper := &scriptedScraper{prices: map[string][]string{url: {"1200", "1020"}}}
	submitter := &recordingSubmitter{err: errors.New("rejected")}
	o, _ := newTestOrchestrator(t, scraper, submitter, DefaultCorrectionOptions())

	item, _ := models.ParseWorkItem(workLine("4", url), 1)
	state, err := o.ProcessItem(context.Background(), item)
	if err != nil {
		t.Fatal(err)
	}
	if state != models.ItemInTolerance {
		t.Errorf("状态 = %s, 期望 %s", state, models.ItemInTolerance)
	}
	if o.submitFails != 1 || o.submissions != 1 {
		t.Errorf("提交统计 = %d/%d, 期望 1/1", o.submitFails, o.submissions)
	}
}

func TestProcessItemCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scraper := &scriptedScraper{
		prices: map[string][]string{},
		onVisit: func(string) error {
			cancel()
			return context.Canceled
		},
	}
	o, _ := newTestOrchestrator(t, scraper, &recordingSubmitter{}, DefaultCorrectionOptions())

	item, _ := models.ParseWorkItem(workLine("5", "https://www.ozon.ru/product/5/"), 1)
	if _, err := o.ProcessItem(ctx, item); !errors.Is(err, context.Canceled) {
		t.Errorf("ProcessItem() error = %v, 期望 context.Canceled", err)
	}
	if len(scraper.visits) != 1 {
		t.Errorf("取消后不应继续抓取, 实际 %d 次", len(scraper.visits))
	}
}

func writeWorkFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), WorkFileName)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestProcessFileResumesAfterCrash(t *testing.T) {
	urls := []string{
		"https://www.ozon.ru/product/10/",
		"https://www.ozon.ru/product/11/",
		"https://www.ozon.ru/product/12/",
	}
	original := []string{workLine("10", urls[0]), workLine("11", urls[1]), workLine("12", urls[2])}
	path := writeWorkFile(t, original...)

	// 第一次运行: 处理第二行时中断
	ctx, cancel := context.WithCancel(context.Background())
	crashing := &scriptedScraper{
		prices: map[string][]string{urls[0]: {"1200", "1030"}},
		onVisit: func(url string) error {
			if url == urls[1] {
				cancel()
				return context.Canceled
			}
			return nil
		},
	}
	o, _ := newTestOrchestrator(t, crashing, &recordingSubmitter{}, DefaultCorrectionOptions())
	if _, err := o.ProcessFile(ctx, path, ""); !IsInterrupted(err) {
		t.Fatalf("ProcessFile() error = %v, 期望中断", err)
	}

	cp, err := models.LoadCheckpointFromFile(models.CheckpointPath(path))
	if err != nil || cp == nil {
		t.Fatalf("检查点应存在: %v", err)
	}
	if cp.NextLine != 1 {
		t.Errorf("NextLine = %d, 期望 1", cp.NextLine)
	}

	lines := readLines(t, path)
	if lines[0] == original[0] {
		t.Error("第一行应已改写")
	}
	if !strings.Contains(lines[0], " 1030 ") {
		t.Errorf("第一行应记录店面价1030: %s", lines[0])
	}
	if lines[1] != original[1] || lines[2] != original[2] {
		t.Error("中断行和之后的行不应被修改")
	}

	// 第二次运行: 从第二行继续
	resumed := &scriptedScraper{prices: map[string][]string{
		urls[1]: {"1010"},
		urls[2]: {"1000"},
	}}
	o2, _ := newTestOrchestrator(t, resumed, &recordingSubmitter{}, DefaultCorrectionOptions())
	stats, err := o2.ProcessFile(context.Background(), path, "")
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}

	for _, u := range resumed.visits {
		if u == urls[0] {
			t.Error("已完成的行不应重新处理")
		}
	}
	// 收敛和提交计数包含中断前的第一行
	if stats.Skipped != 1 || stats.Processed != 2 || stats.InTolerance != 3 {
		t.Errorf("统计 = %+v", stats)
	}
	if stats.Submissions != 1 {
		t.Errorf("Submissions = %d, 期望沿用中断前的 1", stats.Submissions)
	}

	cp, _ = models.LoadCheckpointFromFile(models.CheckpointPath(path))
	if cp == nil || !cp.Done() {
		t.Errorf("检查点应标记完成: %+v", cp)
	}
	if cp != nil && (cp.Stats.InTolerance != 3 || cp.Stats.Submissions != 1) {
		t.Errorf("检查点统计丢失了中断前的结果: %+v", cp.Stats)
	}
}

func TestProcessFileSkipsNonFiniteAndZeroBase(t *testing.T) {
	url := "https://www.ozon.ru/product/25/"
	nanLine := "1 SKU1 OFF-1 0.00% 1000 1200 900 NaN 1000 Чайник https://ozon.ru/p/1"
	zeroBase := "2 SKU2 OFF-2 0.00% 0 1200 900 1000 1000 Чайник https://ozon.ru/p/2"
	path := writeWorkFile(t, nanLine, zeroBase, workLine("25", url))

	scraper := &scriptedScraper{prices: map[string][]string{url: {"1000"}}}
	submitter := &recordingSubmitter{}
	o, _ := newTestOrchestrator(t, scraper, submitter, DefaultCorrectionOptions())
	stats, err := o.ProcessFile(context.Background(), path, "")
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}

	if stats.Invalid != 2 || stats.InTolerance != 1 {
		t.Errorf("统计 = %+v", stats)
	}
	if len(submitter.quotes) != 0 {
		t.Errorf("无效行不应提交价格: %v", submitter.quotes)
	}
	lines := readLines(t, path)
	if lines[0] != nanLine || lines[1] != zeroBase {
		t.Error("无效行被修改")
	}
}

func TestProcessFileInvalidLinesUntouched(t *testing.T) {
	url := "https://www.ozon.ru/product/20/"
	bad := "20 SKU20 OFF-20 oops"
	path := writeWorkFile(t, bad, workLine("21", url))

	scraper := &scriptedScraper{prices: map[string][]string{url: {"1000"}}}
	o, sleeps := newTestOrchestrator(t, scraper, &recordingSubmitter{}, DefaultCorrectionOptions())
	stats, err := o.ProcessFile(context.Background(), path, "")
	if err != nil {
		t.Fatal(err)
	}

	if stats.Invalid != 1 || stats.InTolerance != 1 {
		t.Errorf("统计 = %+v", stats)
	}
	if lines := readLines(t, path); lines[0] != bad {
		t.Errorf("无效行被修改: %q", lines[0])
	}
	// 两行之间一次商品间隔
	if len(*sleeps) != 1 {
		t.Errorf("等待次数 = %d, 期望 1", len(*sleeps))
	}
}

func TestProcessFileDryRun(t *testing.T) {
	url := "https://www.ozon.ru/product/30/"
	line := workLine("30", url)
	path := writeWorkFile(t, line)

	scraper := &scriptedScraper{prices: map[string][]string{url: {"1300", "1300"}}}
	submitter := &recordingSubmitter{}
	opts := DefaultCorrectionOptions()
	opts.DryRun = true
	o, _ := newTestOrchestrator(t, scraper, submitter, opts)

	if _, err := o.ProcessFile(context.Background(), path, ""); err != nil {
		t.Fatal(err)
	}
	if len(submitter.quotes) != 0 {
		t.Error("演练模式不应提交")
	}
	if len(scraper.visits) != 1 {
		t.Errorf("演练模式只抓取一次, 实际 %d", len(scraper.visits))
	}
	if lines := readLines(t, path); lines[0] != line {
		t.Error("演练模式不应改写文件")
	}
	if _, err := os.Stat(models.CheckpointPath(path)); !os.IsNotExist(err) {
		t.Error("演练模式不应写检查点")
	}
}

func TestProcessFileRestartsFinishedCheckpoint(t *testing.T) {
	url := "https://www.ozon.ru/product/40/"
	path := writeWorkFile(t, workLine("40", url))

	cp := models.NewCheckpoint(path, "", 1)
	cp.NextLine = 1
	if err := cp.SaveToFile(models.CheckpointPath(path)); err != nil {
		t.Fatal(err)
	}

	scraper := &scriptedScraper{prices: map[string][]string{url: {"1000"}}}
	o, _ := newTestOrchestrator(t, scraper, &recordingSubmitter{}, DefaultCorrectionOptions())
	stats, err := o.ProcessFile(context.Background(), path, "")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed != 1 || stats.Skipped != 0 {
		t.Errorf("已完成的检查点应开始新一轮: %+v", stats)
	}
}
