package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/metrics"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

// DefaultContinueButtons 拦截页上"继续/刷新"按钮
var DefaultContinueButtons = []string{
	`//button[contains(text(), 'Обновить')]`,
	`//button[contains(text(), 'Продолжить')]`,
	`//button[contains(text(), 'Подтвердить')]`,
	`//button[contains(@class, 'refresh')]`,
	`//div[contains(@class, 'button')][contains(text(), 'Обновить')]`,
}

// 按文本查找可点击元素并点击, 返回 "true"/"false"
const revealScript = `() => {
	const phrases = ['Обновить', 'Продолжить', 'Подтвердить'];
	const matches = (el) => phrases.some((p) => (el.innerText || '').includes(p));
	for (const el of document.querySelectorAll('button, .button, .btn, [role="button"]')) {
		if (matches(el)) {
			el.click();
			return 'true';
		}
	}
	return 'false';
}`

// ScraperOptions 抓取参数
type ScraperOptions struct {
	// Retry 单个URL的重试策略, MaxAttempts为最大尝试次数
	Retry utils.Backoff
	// RotateDelay 更换身份后的等待
	RotateDelay time.Duration
	// ClickWait 查找继续按钮的等待
	ClickWait time.Duration
	// SettleDelay 点击之后的等待
	SettleDelay time.Duration
	// ContinueButtons 继续按钮XPath, 为空使用默认值
	ContinueButtons []string
	// DebugDir 找不到价格时保存页面的目录, 为空不保存
	DebugDir string
	// Session 会话参数
	Session SessionOptions
}

// DefaultScraperOptions 默认抓取参数
func DefaultScraperOptions() ScraperOptions {
	return ScraperOptions{
		Retry:       utils.Backoff{MaxAttempts: 4, Base: time.Second, Ceiling: 10 * time.Second},
		RotateDelay: time.Second,
		ClickWait:   5 * time.Second,
		SettleDelay: 5 * time.Second,
		Session:     DefaultSessionOptions(),
	}
}

// Scraper 组合身份池、会话、拦截检测和价格提取
// 一个Scraper同一时间只持有一个会话, 不可并发使用
type Scraper struct {
	pool      *IdentityPool
	factory   EngineFactory
	detector  *BlockDetector
	extractor *PriceExtractor
	traffic   *TrafficStats
	opts      ScraperOptions

	session    *Session
	lastURL    string // 最近一次请求的URL
	currentURL string // 当前会话已加载的URL
	blockCount int    // 连续拦截次数
}

// NewScraper 创建抓取器, 会话在第一次抓取时打开
func NewScraper(pool *IdentityPool, factory EngineFactory, detector *BlockDetector, extractor *PriceExtractor, traffic *TrafficStats, opts ScraperOptions) *Scraper {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 4
	}
	if len(opts.ContinueButtons) == 0 {
		opts.ContinueButtons = DefaultContinueButtons
	}
	return &Scraper{
		pool:      pool,
		factory:   factory,
		detector:  detector,
		extractor: extractor,
		traffic:   traffic,
		opts:      opts,
	}
}

// ScrapePrice 抓取商品页价格
// 找不到价格返回ErrNoPrice, ctx取消返回ctx错误
func (s *Scraper) ScrapePrice(ctx context.Context, url string) (string, error) {
	s.lastURL = url

	for attempt := 1; attempt <= s.opts.Retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if err := s.ensureSession(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			utils.Warnf("⚠️  打开会话失败 (第%d/%d次): %v", attempt, s.opts.Retry.MaxAttempts, err)
			if err := utils.Sleep(ctx, s.opts.Retry.Delay(attempt)); err != nil {
				return "", err
			}
			continue
		}

		if s.currentURL != url {
			utils.Infof("🌐 加载页面 (第%d/%d次): %s", attempt, s.opts.Retry.MaxAttempts, url)
			if err := s.session.Navigate(ctx, url); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				utils.Warnf("⚠️  页面加载失败: %v", err)
				metrics.ScrapeOutcomes.WithLabelValues("error").Inc()
				s.rotateOrLog(ctx)
				continue
			}
			s.currentURL = url
		}

		markup, err := s.session.Markup(ctx)
		if err != nil {
			utils.Warnf("⚠️  读取页面失败: %v", err)
			metrics.ScrapeOutcomes.WithLabelValues("error").Inc()
			s.rotateOrLog(ctx)
			continue
		}

		if blocked, marker := s.detector.IsBlocked(markup); blocked {
			utils.Warnf("🚫 检测到拦截页: %s", marker)
			metrics.BlockDetections.WithLabelValues(marker).Inc()
			if err := s.HandleBlock(ctx); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				utils.Warnf("⚠️  处理拦截失败: %v", err)
			}
			continue
		}

		if price, ok := s.extractor.Extract(ctx, markup, s.session); ok {
			metrics.ScrapeOutcomes.WithLabelValues("ok").Inc()
			return price, nil
		}

		utils.Warnf("⚠️  页面中未找到价格: %s", url)
		metrics.ScrapeOutcomes.WithLabelValues("no_price").Inc()
		if s.opts.DebugDir != "" {
			if path, err := s.session.DumpPage(ctx, s.opts.DebugDir, url); err == nil {
				utils.Debugf("已保存调试页面: %s", path)
			}
		}
		s.rotateOrLog(ctx)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	utils.Errorf("❌ 无法获取价格: %s", url)
	return "", ErrNoPrice
}

// IsBlocked 检查当前页面是否为拦截页
func (s *Scraper) IsBlocked(ctx context.Context) (bool, string, error) {
	if s.session == nil {
		return false, "", ErrSessionClosed
	}
	markup, err := s.session.Markup(ctx)
	if err != nil {
		return false, "", err
	}
	blocked, marker := s.detector.IsBlocked(markup)
	return blocked, marker, nil
}

// HandleBlock 逐级处理拦截: 点击继续 → 频繁拦截换身份 → 脚本点击 → 换身份
func (s *Scraper) HandleBlock(ctx context.Context) error {
	if s.session == nil {
		return ErrSessionClosed
	}
	s.blockCount++
	utils.Infof("🔓 尝试处理拦截 (连续第%d次)", s.blockCount)

	for _, xpath := range s.opts.ContinueButtons {
		clicked, err := s.session.ClickIfPresent(ctx, xpath, s.opts.ClickWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			utils.Debugf("点击按钮失败 [%s]: %v", xpath, err)
			continue
		}
		if !clicked {
			continue
		}
		utils.Infof("已点击按钮: %s", xpath)
		if resolved, err := s.settleAndRecheck(ctx); err != nil {
			return err
		} else if resolved {
			s.blockCount = 0
			return nil
		}
		break
	}

	if s.blockCount >= 2 {
		utils.Warn("⚠️  频繁拦截, 更换身份")
		return s.RotateIdentity(ctx)
	}

	result, err := s.session.RunScript(ctx, revealScript)
	if err != nil {
		utils.Debugf("脚本点击失败: %v", err)
	} else if strings.TrimSpace(result) == "true" {
		utils.Info("已通过脚本点击继续按钮")
		if resolved, err := s.settleAndRecheck(ctx); err != nil {
			return err
		} else if resolved {
			s.blockCount = 0
			return nil
		}
	}

	utils.Warn("⚠️  无法绕过拦截, 更换身份")
	return s.RotateIdentity(ctx)
}

// settleAndRecheck 等待页面稳定后重新检查
func (s *Scraper) settleAndRecheck(ctx context.Context) (bool, error) {
	if err := utils.Sleep(ctx, s.opts.SettleDelay); err != nil {
		return false, err
	}
	blocked, _, err := s.IsBlocked(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return !blocked, nil
}

// RotateIdentity 关闭会话, 换新身份重新打开并回到上一个URL
func (s *Scraper) RotateIdentity(ctx context.Context) error {
	utils.Info("🔄 更换身份...")
	metrics.IdentityRotations.Inc()
	s.closeSession()

	id := s.pool.NextIdentity()
	if err := utils.Sleep(ctx, s.opts.RotateDelay); err != nil {
		return err
	}

	session, err := OpenSession(ctx, s.factory, id, s.opts.Session, s.traffic)
	if err != nil {
		return err
	}
	s.session = session
	s.blockCount = 0
	utils.Infof("✅ 身份已更换: %s", id)

	if s.lastURL != "" {
		if err := session.Navigate(ctx, s.lastURL); err != nil {
			return fmt.Errorf("更换身份后重新加载失败: %w", err)
		}
		s.currentURL = s.lastURL
	}
	return nil
}

func (s *Scraper) rotateOrLog(ctx context.Context) {
	if err := s.RotateIdentity(ctx); err != nil && !errors.Is(err, context.Canceled) {
		utils.Warnf("⚠️  更换身份失败: %v", err)
	}
}

func (s *Scraper) ensureSession(ctx context.Context) error {
	if s.session != nil {
		return nil
	}
	session, err := OpenSession(ctx, s.factory, s.pool.NextIdentity(), s.opts.Session, s.traffic)
	if err != nil {
		return err
	}
	s.session = session
	s.currentURL = ""
	return nil
}

func (s *Scraper) closeSession() {
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			utils.Debugf("关闭会话失败: %v", err)
		}
		s.session = nil
	}
	s.currentURL = ""
}

// Close 释放会话
func (s *Scraper) Close() error {
	s.closeSession()
	return nil
}
