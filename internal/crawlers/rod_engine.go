package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// 页面脚本执行前注入, 隐藏自动化特征
const fingerprintScript = `() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
	Object.defineProperty(navigator, 'languages', { get: () => ['ru-RU', 'ru', 'en-US', 'en'] });
	Object.defineProperty(navigator, 'maxTouchPoints', { get: () => 1 });
	window.chrome = window.chrome || { runtime: {} };
	const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
	if (originalQuery) {
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: originalQuery(parameters)
		);
	}
}`

// RodOptions 浏览器启动参数
type RodOptions struct {
	Headless          bool
	Bin               string
	NavigationTimeout time.Duration
	AcceptLanguage    string
}

// RodEngine 基于go-rod的渲染引擎, 一个实例独占一个浏览器进程
type RodEngine struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	opts     RodOptions

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	closed        atomic.Bool
}

// NewRodEngineFactory 返回生产环境使用的引擎工厂
func NewRodEngineFactory(opts RodOptions) EngineFactory {
	return func(ctx context.Context, id models.Identity) (Engine, error) {
		return NewRodEngine(ctx, id, opts)
	}
}

// NewRodEngine 启动浏览器并打开一个隐身页面
func NewRodEngine(ctx context.Context, id models.Identity, opts RodOptions) (*RodEngine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = "ru-RU,ru;q=0.9,en-US;q=0.8"
	}

	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-extensions").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("lang", "ru-RU,ru").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("ignore-certificate-errors")
	if id.UserAgent != "" {
		l = l.Set("user-agent", id.UserAgent)
	}
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if !id.Proxy.IsDirect() {
		l = l.Proxy(id.Proxy.Server())
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	e := &RodEngine{launcher: l, opts: opts}
	e.browser = rod.New().ControlURL(controlURL)
	if err := e.browser.Connect(); err != nil {
		e.kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	if id.Proxy.HasCredentials() {
		go e.answerProxyAuth(id.Proxy.Username, id.Proxy.Password)
	}

	page, err := stealth.Page(e.browser)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	e.page = page

	if _, err := page.EvalOnNewDocument("(" + fingerprintScript + ")()"); err != nil {
		utils.Warnf("注入指纹脚本失败: %v", err)
	}
	if id.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      id.UserAgent,
			AcceptLanguage: opts.AcceptLanguage,
		})
		if err != nil {
			utils.Warnf("设置User-Agent失败: %v", err)
		}
	}

	go page.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.Request == nil {
				return
			}
			n := len(ev.Request.URL)
			for k, v := range ev.Request.Headers {
				n += len(k) + len(v.String())
			}
			e.bytesSent.Add(int64(n))
		},
		func(ev *proto.NetworkLoadingFinished) {
			e.bytesReceived.Add(int64(ev.EncodedDataLength))
		},
	)()

	utils.Debugf("浏览器已启动: %s [%s]", controlURL, id.Proxy)
	return e, nil
}

// answerProxyAuth 持续响应代理认证, 浏览器关闭后退出
func (e *RodEngine) answerProxyAuth(username, password string) {
	for !e.closed.Load() {
		if err := e.browser.HandleAuth(username, password)(); err != nil {
			return
		}
	}
}

// Navigate 打开URL并等待load事件
func (e *RodEngine) Navigate(ctx context.Context, url string) error {
	if e.closed.Load() {
		return ErrSessionClosed
	}
	p := e.page.Context(ctx).Timeout(e.opts.NavigationTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}
	return nil
}

// CurrentMarkup 当前DOM的HTML
func (e *RodEngine) CurrentMarkup(ctx context.Context) (string, error) {
	if e.closed.Load() {
		return "", ErrSessionClosed
	}
	return e.page.Context(ctx).HTML()
}

// RunScript 执行函数表达式并返回字符串结果
func (e *RodEngine) RunScript(ctx context.Context, js string) (string, error) {
	if e.closed.Load() {
		return "", ErrSessionClosed
	}
	res, err := e.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	if res == nil || res.Value.Nil() {
		return "", nil
	}
	return res.Value.Str(), nil
}

// ClickIfPresent 在wait时间内查找元素, 找到则点击
func (e *RodEngine) ClickIfPresent(ctx context.Context, xpath string, wait time.Duration) (bool, error) {
	if e.closed.Load() {
		return false, ErrSessionClosed
	}
	tp := e.page.Context(ctx).Timeout(wait)
	el, err := tp.ElementX(xpath)
	tp.CancelTimeout()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		var notFound *rod.ElementNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, err
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("点击失败: %w", err)
	}
	return true, nil
}

// Screenshot 当前视口的PNG截图
func (e *RodEngine) Screenshot(ctx context.Context) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrSessionClosed
	}
	return e.page.Context(ctx).Screenshot(false, nil)
}

// Traffic 累计流量
func (e *RodEngine) Traffic() (sent, received int64) {
	return e.bytesSent.Load(), e.bytesReceived.Load()
}

// Close 关闭页面和浏览器, 并结束浏览器进程
func (e *RodEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if e.page != nil {
		_ = e.page.Close()
	}
	if e.browser != nil {
		err = e.browser.Close()
	}
	e.kill()
	return err
}

func (e *RodEngine) kill() {
	if e.launcher != nil {
		e.launcher.Kill()
		e.launcher.Cleanup()
	}
}
