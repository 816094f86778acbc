package crawlers

import (
	"context"
	"errors"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
)

var (
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("会话已关闭")
	// ErrNoPrice 所有策略都没有找到价格
	ErrNoPrice = errors.New("未找到价格")
	// ErrEngineCrashed 渲染引擎崩溃(panic)
	ErrEngineCrashed = errors.New("渲染引擎崩溃")
)

// Engine 渲染引擎能力接口
// RunScript 接收函数表达式, 如 "() => document.title"
type Engine interface {
	Navigate(ctx context.Context, url string) error
	CurrentMarkup(ctx context.Context) (string, error)
	RunScript(ctx context.Context, js string) (string, error)
	ClickIfPresent(ctx context.Context, xpath string, wait time.Duration) (bool, error)
	Close() error
}

// TrafficCounter 引擎自身统计的累计流量
type TrafficCounter interface {
	Traffic() (sent, received int64)
}

// Screenshotter 支持截图的引擎
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// EngineFactory 按身份创建引擎
type EngineFactory func(ctx context.Context, id models.Identity) (Engine, error)
