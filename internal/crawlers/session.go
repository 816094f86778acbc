package crawlers

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

// DefaultWarmupURLs 预热访问的中性页面
var DefaultWarmupURLs = []string{
	"https://ya.ru",
	"https://www.wikipedia.org",
}

// SessionOptions 会话参数
type SessionOptions struct {
	// NavigationTimeout 单次导航超时
	NavigationTimeout time.Duration
	// RequestDelay 每次导航后的随机等待
	RequestDelay utils.DelayRange
	// WarmupURLs 打开会话后先访问的页面, 为空则跳过预热
	WarmupURLs []string
	// MotionPause 模拟滚动/鼠标动作之间的停顿
	MotionPause utils.DelayRange
}

// DefaultSessionOptions 默认会话参数
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		NavigationTimeout: 60 * time.Second,
		RequestDelay:      utils.NewDelayRange(2, 4),
		WarmupURLs:        DefaultWarmupURLs,
		MotionPause:       utils.NewDelayRange(0.3, 1),
	}
}

// Session 绑定一个身份的渲染会话
// 不可在goroutine之间共享
type Session struct {
	engine   Engine
	identity models.Identity
	opts     SessionOptions
	traffic  *TrafficStats

	mu     sync.Mutex
	closed bool
}

// OpenSession 创建引擎并预热
func OpenSession(ctx context.Context, factory EngineFactory, id models.Identity, opts SessionOptions, traffic *TrafficStats) (*Session, error) {
	engine, err := factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("创建渲染引擎失败 [%s]: %w", id.Proxy, err)
	}

	s := &Session{
		engine:   engine,
		identity: id,
		opts:     opts,
		traffic:  traffic,
	}
	if err := s.warmup(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// WithSession 打开会话执行fn, 任何退出路径(包括panic)都会关闭会话
func WithSession(ctx context.Context, factory EngineFactory, id models.Identity, opts SessionOptions, traffic *TrafficStats, fn func(*Session) error) (err error) {
	s, err := OpenSession(ctx, factory, id, opts, traffic)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEngineCrashed, r)
		}
		if cerr := s.Close(); cerr != nil {
			utils.Debugf("关闭会话失败: %v", cerr)
		}
	}()
	return fn(s)
}

// warmup 访问中性页面并滚动, 失败只记录日志
func (s *Session) warmup(ctx context.Context) error {
	for _, u := range s.opts.WarmupURLs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.navigateWithTimeout(ctx, u); err != nil {
			utils.Debugf("预热页面访问失败 [%s]: %v", u, err)
			continue
		}
		for _, frac := range []string{"0.25", "0.5"} {
			js := fmt.Sprintf("() => window.scrollTo(0, document.body.scrollHeight * %s)", frac)
			if _, err := s.engine.RunScript(ctx, js); err != nil {
				utils.Debugf("预热滚动失败: %v", err)
				break
			}
			if err := utils.Sleep(ctx, s.opts.MotionPause.Pick()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Identity 当前身份
func (s *Session) Identity() models.Identity {
	return s.identity
}

// Navigate 导航 → 随机等待 → 流量统计 → 模拟人类动作
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	var sentBefore, recvBefore int64
	counter, counts := s.engine.(TrafficCounter)
	if counts {
		sentBefore, recvBefore = counter.Traffic()
	}

	if err := s.navigateWithTimeout(ctx, url); err != nil {
		return err
	}
	if err := utils.Sleep(ctx, s.opts.RequestDelay.Pick()); err != nil {
		return err
	}

	if counts {
		sent, recv := counter.Traffic()
		s.traffic.Add(url, sent-sentBefore, recv-recvBefore)
	} else if markup, err := s.engine.CurrentMarkup(ctx); err == nil {
		s.traffic.Add(url, int64(len(url)), int64(len(markup)))
	}

	return s.simulateHuman(ctx)
}

func (s *Session) navigateWithTimeout(ctx context.Context, url string) error {
	navCtx := ctx
	if s.opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.opts.NavigationTimeout)
		defer cancel()
	}
	return s.engine.Navigate(navCtx, url)
}

// simulateHuman 四次分段滚动和五次鼠标移动
func (s *Session) simulateHuman(ctx context.Context) error {
	for step := 1; step <= 4; step++ {
		js := fmt.Sprintf("() => window.scrollTo(0, document.body.scrollHeight * %d / 4)", step)
		if _, err := s.engine.RunScript(ctx, js); err != nil {
			utils.Debugf("模拟滚动失败: %v", err)
			return nil
		}
		if err := utils.Sleep(ctx, s.opts.MotionPause.Pick()); err != nil {
			return err
		}
	}
	for i := 0; i < 5; i++ {
		js := fmt.Sprintf(`() => document.dispatchEvent(new MouseEvent('mousemove', {clientX: %d, clientY: %d, bubbles: true}))`,
			100+rand.Intn(1100), 100+rand.Intn(600))
		if _, err := s.engine.RunScript(ctx, js); err != nil {
			utils.Debugf("模拟鼠标移动失败: %v", err)
			return nil
		}
		if err := utils.Sleep(ctx, s.opts.MotionPause.Pick()/3); err != nil {
			return err
		}
	}
	return nil
}

// Markup 当前页面HTML
func (s *Session) Markup(ctx context.Context) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	return s.engine.CurrentMarkup(ctx)
}

// RunScript 执行页面脚本
func (s *Session) RunScript(ctx context.Context, js string) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	return s.engine.RunScript(ctx, js)
}

// ClickIfPresent 点击元素(如果存在)
func (s *Session) ClickIfPresent(ctx context.Context, xpath string, wait time.Duration) (bool, error) {
	if s.isClosed() {
		return false, ErrSessionClosed
	}
	return s.engine.ClickIfPresent(ctx, xpath, wait)
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// DumpPage 保存当前页面HTML(和截图)到调试目录, 返回HTML文件路径
func (s *Session) DumpPage(ctx context.Context, dir, url string) (string, error) {
	markup, err := s.Markup(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建调试目录失败: %w", err)
	}

	name := unsafeFileChars.ReplaceAllString(url, "_")
	if len(name) > 80 {
		name = name[len(name)-80:]
	}
	base := filepath.Join(dir, fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), name))

	htmlPath := base + ".html"
	if err := os.WriteFile(htmlPath, []byte(markup), 0644); err != nil {
		return "", fmt.Errorf("保存调试页面失败: %w", err)
	}

	if shot, ok := s.engine.(Screenshotter); ok {
		png, err := shot.Screenshot(ctx)
		if err != nil {
			utils.Debugf("截图失败: %v", err)
		} else if err := os.WriteFile(base+".png", png, 0644); err != nil {
			utils.Debugf("保存截图失败: %v", err)
		}
	}
	return htmlPath, nil
}

// Close 关闭引擎, 可重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.engine.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
