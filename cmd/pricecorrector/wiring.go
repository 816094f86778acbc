package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/core"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/crawlers"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/ozon"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

// newOzonClient 读取凭据并创建卖家接口客户端
func newOzonClient(cfg *core.Config) (*ozon.Client, error) {
	creds, err := core.LoadCredentials(envFile)
	if err != nil {
		return nil, err
	}
	client, err := ozon.NewClient(creds, cfg.ClientOptions())
	if err != nil {
		return nil, fmt.Errorf("创建接口客户端失败: %w", err)
	}
	return client, nil
}

// loadIdentityPool 读取并检测代理, 代理文件不存在时使用直连
func loadIdentityPool(ctx context.Context, cfg *core.Config) (*crawlers.IdentityPool, error) {
	candidates, err := crawlers.ReadProxyFile(cfg.Identity.ProxyFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取代理文件失败: %w", err)
		}
		utils.Warnf("⚠️  代理文件不存在: %s, 使用直连", cfg.Identity.ProxyFile)
	}

	var checker crawlers.ProxyChecker
	if !cfg.Identity.SkipCheck {
		checker = crawlers.NewEchoChecker(cfg.Identity.EchoURL, cfg.Identity.CheckTimeout)
	}

	pool, err := crawlers.LoadIdentityPool(ctx, candidates, checker, cfg.PoolOptions())
	if err != nil {
		return nil, fmt.Errorf("加载身份池失败: %w", err)
	}
	return pool, nil
}

// newScraper 组装一个独占浏览器会话的抓取器
func newScraper(cfg *core.Config, pool *crawlers.IdentityPool, traffic *crawlers.TrafficStats) (*crawlers.Scraper, error) {
	detector, err := crawlers.NewBlockDetector(cfg.Scrape.BlockMarkers, cfg.Scrape.BlockPhrases)
	if err != nil {
		return nil, fmt.Errorf("拦截规则无效: %w", err)
	}
	extractor, err := crawlers.NewPriceExtractor(cfg.Scrape.PriceSelectors, cfg.Scrape.PricePatterns)
	if err != nil {
		return nil, fmt.Errorf("价格规则无效: %w", err)
	}

	factory := crawlers.NewRodEngineFactory(cfg.RodOptions())
	return crawlers.NewScraper(pool, factory, detector, extractor, traffic, cfg.ScraperOptions()), nil
}
