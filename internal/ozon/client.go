// Package ozon 卖家接口客户端: 价格更新和商品信息查询
package ozon

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/metrics"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/pricing"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL 卖家接口地址
	DefaultBaseURL = "https://api-seller.ozon.ru"

	importPricesPath = "/v1/product/import/prices"
	productInfoPath  = "/v3/product/info/list"

	currencyRUB = "RUB"
)

var (
	// ErrRejected 接口拒绝请求(4xx, 不重试)
	ErrRejected = errors.New("接口拒绝请求")
	// ErrNotUpdated 请求成功但价格未更新
	ErrNotUpdated = errors.New("价格未更新")
	// ErrRetriesExhausted 重试次数用尽
	ErrRetriesExhausted = errors.New("重试次数用尽")
	// ErrUnexpectedStatus 接口返回了非200、非4xx、非5xx的状态码
	ErrUnexpectedStatus = errors.New("接口返回意外状态码")
	// ErrInvalidQuote 修复后价格仍不合法
	ErrInvalidQuote = errors.New("价格不合法")
	// ErrMissingCredentials Client-Id或Api-Key为空
	ErrMissingCredentials = errors.New("缺少接口凭据")
)

// APIError 接口返回的非2xx错误
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Unwrap 4xx错误视为ErrRejected, 2xx/3xx等视为ErrUnexpectedStatus
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return nil
	case e.StatusCode >= 400:
		return ErrRejected
	default:
		return ErrUnexpectedStatus
	}
}

// Credentials 接口凭据, 由环境变量 OZON_CLIENT_ID / OZON_API_KEY 提供
type Credentials struct {
	ClientID string `envconfig:"CLIENT_ID" required:"true"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

// Options 客户端参数
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	Retry             utils.Backoff
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client 卖家接口客户端, 可并发使用
type Client struct {
	baseURL  string
	creds    Credentials
	http     *http.Client
	limiter  *rate.Limiter
	retry    utils.Backoff
	redactor *utils.Redactor

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewClient 创建客户端
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if creds.ClientID == "" || creds.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = utils.DefaultBackoff()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		creds:    creds,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, 1),
		retry:    opts.Retry,
		redactor: utils.NewRedactor(creds.APIKey),
		sleep:    utils.Sleep,
		now:      time.Now,
	}, nil
}

// SubmitPrice 提交一个商品的新价格
// 只有结果中该商品 updated=true 才算成功
func (c *Client) SubmitPrice(ctx context.Context, offerID string, quote models.PriceQuote) error {
	repaired, changed := pricing.RepairQuote(quote)
	if changed {
		utils.Warnf("⚠️  %s 价格顺序已修正: %s → %s", offerID, quote, repaired)
	}
	if !repaired.Valid() {
		metrics.PriceSubmissions.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %s %s", ErrInvalidQuote, offerID, repaired)
	}

	req := ImportPricesRequest{Prices: []PriceItem{{
		OfferID:                       offerID,
		OldPrice:                      strconv.FormatInt(repaired.OldPrice, 10),
		Price:                         strconv.FormatInt(repaired.Price, 10),
		MinPrice:                      strconv.FormatInt(repaired.MinPrice, 10),
		CurrencyCode:                  currencyRUB,
		MinPriceForAutoActionsEnabled: true,
		PriceStrategyEnabled:          "DISABLED",
		AutoActionEnabled:             "UNKNOWN",
	}}}

	utils.Infof("📤 提交价格 %s: %s", offerID, repaired)

	var resp ImportPricesResponse
	if err := c.post(ctx, importPricesPath, req, &resp); err != nil {
		switch {
		case errors.Is(err, ErrRejected):
			metrics.PriceSubmissions.WithLabelValues("rejected").Inc()
		case errors.Is(err, ErrUnexpectedStatus):
			metrics.PriceSubmissions.WithLabelValues("unexpected").Inc()
		case errors.Is(err, ErrRetriesExhausted):
			metrics.PriceSubmissions.WithLabelValues("exhausted").Inc()
		default:
			metrics.PriceSubmissions.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("提交价格失败 [%s]: %w", offerID, err)
	}

	for _, item := range resp.Result {
		if item.OfferID != offerID {
			continue
		}
		if item.Updated {
			metrics.PriceSubmissions.WithLabelValues("ok").Inc()
			utils.Infof("✅ 价格已更新: %s", offerID)
			return nil
		}
		for _, e := range item.Errors {
			utils.Errorf("❌ %s 校验错误: %s", offerID, e)
		}
	}

	metrics.PriceSubmissions.WithLabelValues("not_updated").Inc()
	return fmt.Errorf("%w: %s", ErrNotUpdated, offerID)
}

// ProductInfo 按offer_id查询当前价格
func (c *Client) ProductInfo(ctx context.Context, offerIDs []string) ([]ProductInfo, error) {
	if len(offerIDs) == 0 {
		return nil, nil
	}
	var resp ProductInfoResponse
	if err := c.post(ctx, productInfoPath, ProductInfoRequest{OfferID: offerIDs}, &resp); err != nil {
		return nil, fmt.Errorf("查询商品信息失败: %w", err)
	}
	return resp.Items, nil
}

// post 发送JSON请求, 处理限速、重试和响应解码
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		status, data, header, err := c.send(ctx, path, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			utils.Warnf("⚠️  请求 %s 失败 (第%d/%d次): %v", path, attempt, c.retry.MaxAttempts, c.redactor.RedactText(err.Error()))
			if err := c.wait(ctx, attempt, c.retry.Delay(attempt)); err != nil {
				return err
			}
			continue
		}

		switch {
		case status == http.StatusOK:
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("解析响应失败: %w", err)
			}
			return nil

		case status == http.StatusTooManyRequests:
			delay, ok := utils.ParseRetryAfter(header, c.now())
			if !ok {
				delay = c.retry.Delay(attempt)
			}
			delay = c.retry.Cap(delay)
			lastErr = newAPIError(status, data)
			utils.Warnf("⚠️  请求 %s 被限流, 等待 %s", path, delay)
			if err := c.wait(ctx, attempt, delay); err != nil {
				return err
			}

		case status >= http.StatusInternalServerError:
			lastErr = newAPIError(status, data)
			utils.Warnf("⚠️  请求 %s 服务端错误 (第%d/%d次): %v", path, attempt, c.retry.MaxAttempts, lastErr)
			if err := c.wait(ctx, attempt, c.retry.Delay(attempt)); err != nil {
				return err
			}

		case status >= http.StatusBadRequest:
			apiErr := newAPIError(status, data)
			utils.Errorf("❌ 请求 %s 被拒绝: %v", path, apiErr)
			return apiErr

		default:
			apiErr := newAPIError(status, data)
			utils.Errorf("❌ 请求 %s 返回意外状态: %v", path, apiErr)
			return apiErr
		}
	}

	return fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// wait 最后一次尝试之后不再等待
func (c *Client) wait(ctx context.Context, attempt int, d time.Duration) error {
	if attempt >= c.retry.MaxAttempts {
		return nil
	}
	return c.sleep(ctx, d)
}

func (c *Client) send(ctx context.Context, path string, body []byte) (int, []byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Client-Id", c.creds.ClientID)
	req.Header.Set("Api-Key", c.creds.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")
	utils.Debugf("POST %s [%s]", path, c.redactor.RedactHeaders(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APILatency.WithLabelValues(path, "error").Observe(time.Since(start).Seconds())
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	metrics.APILatency.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	data, err := readBody(resp)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return resp.StatusCode, data, resp.Header, nil
}

// readBody 按Content-Encoding解码
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(io.LimitReader(r, 16<<20))
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var e errorResponse
	if json.Unmarshal(body, &e) == nil {
		apiErr.Code = e.Code
		apiErr.Message = e.Message
	}
	if apiErr.Message == "" && len(body) > 0 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		apiErr.Message = msg
	}
	return apiErr
}
