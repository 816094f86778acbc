package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/pricing"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

// PriceScraper 抓取店面价格, 返回去掉格式的数字串
type PriceScraper interface {
	ScrapePrice(ctx context.Context, url string) (string, error)
}

// PriceSubmitter 提交新价格
type PriceSubmitter interface {
	SubmitPrice(ctx context.Context, offerID string, quote models.PriceQuote) error
}

// CorrectionOptions 价格修正参数
type CorrectionOptions struct {
	MaxAttempts  int              // 每个商品最多抓取次数
	Tolerance    float64          // 容差, 0.05表示[基准价, 基准价×1.05]
	NoPriceDelay time.Duration    // 抓不到价格后的等待
	SettleDelay  utils.DelayRange // 提交后等待店面价格生效
	ItemDelay    utils.DelayRange // 商品之间的等待
	DryRun       bool             // 只计算不提交, 不改写文件
	ShowProgress bool
}

// DefaultCorrectionOptions 默认参数
func DefaultCorrectionOptions() CorrectionOptions {
	return CorrectionOptions{
		MaxAttempts:  5,
		Tolerance:    0.05,
		NoPriceDelay: 20 * time.Second,
		SettleDelay:  utils.NewDelayRange(2, 5),
		ItemDelay:    utils.NewDelayRange(3, 5),
	}
}

// CorrectionOrchestrator 逐行修正工作文件中的商品价格
// 单goroutine顺序执行, 复用同一个抓取会话
type CorrectionOrchestrator struct {
	scraper   PriceScraper
	submitter PriceSubmitter
	engine    *pricing.Engine
	opts      CorrectionOptions

	// 便于测试替换
	sleep func(ctx context.Context, d time.Duration) error

	submissions int
	submitFails int
}

// NewCorrectionOrchestrator 创建价格修正编排器
func NewCorrectionOrchestrator(scraper PriceScraper, submitter PriceSubmitter, engine *pricing.Engine, opts CorrectionOptions) *CorrectionOrchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &CorrectionOrchestrator{
		scraper:   scraper,
		submitter: submitter,
		engine:    engine,
		opts:      opts,
		sleep:     utils.Sleep,
	}
}

// ProcessItem 修正单个商品直到进入容差或尝试次数用尽
// 只有ctx取消时返回错误, 此时item保留最后一次已提交的值
func (o *CorrectionOrchestrator) ProcessItem(ctx context.Context, item *models.WorkItem) (models.ItemState, error) {
	maxAttempts := o.opts.MaxAttempts
	if o.opts.DryRun {
		maxAttempts = 1
	}

	lower, upper := pricing.Bounds(item.BaselinePrice, o.opts.Tolerance)
	utils.Infof("🎯 [%s] 基准价 %.0f, 目标区间 [%.0f, %.0f]", item.OfferID, item.BaselinePrice, lower, upper)

	tracked := item.BasePrice
	item.Attempts = 0
	for item.Attempts < maxAttempts {
		item.Attempts++
		item.State = models.ItemScraping

		market, err := o.scrape(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return item.State, ctxErr
			}
			utils.Warnf("⚠️  [%s] 第%d/%d次未获取到价格: %v, %s后重试",
				item.OfferID, item.Attempts, maxAttempts, err, o.opts.NoPriceDelay)
			if item.Attempts < maxAttempts {
				if err := o.sleep(ctx, o.opts.NoPriceDelay); err != nil {
					return item.State, err
				}
			}
			continue
		}

		item.State = models.ItemEvaluating
		item.MarketPrice = market
		item.Deviation = pricing.Deviation(item.BaselinePrice, market)
		utils.Infof("💰 [%s] 第%d/%d次: 店面价 %.0f, 偏差 %.2f%%",
			item.OfferID, item.Attempts, maxAttempts, market, item.Deviation)

		if pricing.InTolerance(item.BaselinePrice, market, o.opts.Tolerance) {
			item.State = models.ItemInTolerance
			utils.Infof("✅ [%s] 价格已在容差内", item.OfferID)
			return item.State, nil
		}

		item.State = models.ItemCorrecting
		cond := o.engine.SelectCondition(item.Deviation)
		quote := o.engine.ComputeQuote(tracked, cond)
		utils.Infof("🔧 [%s] 条件 %s, 新价格 %s", item.OfferID, cond, quote)

		if o.opts.DryRun {
			utils.Infof("🧪 [%s] 演练模式, 不提交", item.OfferID)
			break
		}

		item.State = models.ItemSubmitting
		o.submissions++
		if err := o.submitter.SubmitPrice(ctx, item.OfferID, quote); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return item.State, ctxErr
			}
			o.submitFails++
			utils.Errorf("❌ [%s] 提交价格失败: %v", item.OfferID, err)
		}

		// 提交失败同样推进跟踪价
		item.ApplyQuote(quote)
		tracked = float64(quote.Price)

		if item.Attempts < maxAttempts {
			if err := o.sleep(ctx, o.opts.SettleDelay.Pick()); err != nil {
				return item.State, err
			}
		}
	}

	item.State = models.ItemExhausted
	utils.Warnf("⚠️  [%s] %d次尝试后仍未进入容差", item.OfferID, item.Attempts)
	return item.State, nil
}

func (o *CorrectionOrchestrator) scrape(ctx context.Context, item *models.WorkItem) (float64, error) {
	raw, err := o.scraper.ScrapePrice(ctx, item.URL)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("价格格式无效 %q", raw)
	}
	return price, nil
}

// ProcessFile 处理工作文件, 每行完成后原子保存文件和检查点
// sourceFile只记录在检查点中, 可为空
func (o *CorrectionOrchestrator) ProcessFile(ctx context.Context, path, sourceFile string) (models.CorrectionStats, error) {
	startTime := time.Now()
	o.submissions, o.submitFails = 0, 0

	wf, err := models.LoadWorkFile(path)
	if err != nil {
		return models.CorrectionStats{}, err
	}

	cpPath := models.CheckpointPath(path)
	cp, err := models.LoadCheckpointFromFile(cpPath)
	if err != nil {
		utils.Warnf("⚠️  检查点不可用, 从头开始: %v", err)
		cp = nil
	}
	if cp != nil && (cp.TotalLines != len(wf.Lines) || cp.Done()) {
		cp = nil
	}
	if cp == nil {
		cp = models.NewCheckpoint(path, sourceFile, len(wf.Lines))
	} else {
		utils.Infof("♻️  从检查点恢复: 第%d/%d行 (运行ID %s)", cp.NextLine+1, cp.TotalLines, cp.RunID)
	}

	// 续跑时沿用检查点中的结果计数, Processed只统计本次
	stats := models.CorrectionStats{
		TotalItems:  len(wf.Lines),
		Skipped:     cp.NextLine,
		InTolerance: cp.Stats.InTolerance,
		Exhausted:   cp.Stats.Exhausted,
		Invalid:     cp.Stats.Invalid,
	}
	baseSubmissions, baseSubmitFails := cp.Stats.Submissions, cp.Stats.SubmitFails

	utils.Info("========================================")
	utils.Infof("🚀 开始价格修正: %s", path)
	utils.Infof("商品行数: %d, 起始行: %d", len(wf.Lines), cp.NextLine+1)
	if o.opts.DryRun {
		utils.Info("🧪 演练模式: 只计算价格, 不提交不改写文件")
	}
	utils.Info("========================================")

	var bar interface{ Add(int) error }
	if o.opts.ShowProgress {
		bar = utils.NewProgressBar(len(wf.Lines)-cp.NextLine, "价格修正")
	}

	finish := func(err error) (models.CorrectionStats, error) {
		stats.Submissions = baseSubmissions + o.submissions
		stats.SubmitFails = baseSubmitFails + o.submitFails
		stats.Duration = time.Since(startTime).Seconds()
		return stats, err
	}

	for i := cp.NextLine; i < len(wf.Lines); i++ {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		line := wf.Lines[i]
		if strings.TrimSpace(line) != "" {
			utils.Infof("📦 处理商品 %d/%d", i+1, len(wf.Lines))
			item, err := models.ParseWorkItem(line, i+1)
			if err != nil {
				utils.Warnf("⚠️  跳过无效行: %v", err)
				stats.Record(models.ItemInvalid)
			} else {
				state, err := o.ProcessItem(ctx, item)
				if err != nil {
					// 中断的行不落盘, 续跑时按上次保存的值重做
					return finish(err)
				}
				if !o.opts.DryRun {
					wf.Lines[i] = item.Line()
				}
				stats.Record(state)
			}
		}

		if !o.opts.DryRun {
			if err := wf.Save(); err != nil {
				return finish(err)
			}
			cp.NextLine = i + 1
			stats.Submissions = baseSubmissions + o.submissions
			stats.SubmitFails = baseSubmitFails + o.submitFails
			cp.Stats = stats
			if err := cp.SaveToFile(cpPath); err != nil {
				return finish(fmt.Errorf("保存检查点失败: %w", err))
			}
		}
		if bar != nil {
			bar.Add(1)
		}

		if i < len(wf.Lines)-1 {
			delay := o.opts.ItemDelay.Pick()
			utils.Debugf("等待 %s", delay)
			if err := o.sleep(ctx, delay); err != nil {
				return finish(err)
			}
		}
	}

	stats, err = finish(nil)
	utils.PrintCorrectionSummary(stats)
	return stats, err
}

// IsInterrupted 错误是否由ctx取消引起
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
