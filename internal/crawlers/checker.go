package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/gocolly/colly/v2"
)

// DefaultEchoURL 代理检测使用的回显地址
const DefaultEchoURL = "https://httpbin.org/ip"

// ProxyChecker 代理可用性检测
type ProxyChecker interface {
	Check(ctx context.Context, ep models.ProxyEndpoint) error
}

// EchoChecker 通过代理请求回显地址, 2xx且有响应体即可用
type EchoChecker struct {
	URL     string
	Timeout time.Duration
}

// NewEchoChecker 创建检测器
func NewEchoChecker(echoURL string, timeout time.Duration) *EchoChecker {
	if echoURL == "" {
		echoURL = DefaultEchoURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EchoChecker{URL: echoURL, Timeout: timeout}
}

// Check 实现ProxyChecker
func (c *EchoChecker) Check(ctx context.Context, ep models.ProxyEndpoint) error {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	collector.SetRequestTimeout(c.Timeout)

	if !ep.IsDirect() {
		if err := collector.SetProxy(ep.URL().String()); err != nil {
			return fmt.Errorf("设置代理失败: %w", err)
		}
	}

	var (
		status int
		size   int
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		size = len(r.Body)
	})

	if err := collector.Visit(c.URL); err != nil {
		return fmt.Errorf("回显请求失败: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return fmt.Errorf("回显状态码异常: %d", status)
	}
	if size == 0 {
		return errors.New("回显响应为空")
	}
	return nil
}
