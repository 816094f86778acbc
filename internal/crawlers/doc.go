// Package crawlers 负责店面价格的获取
//
// 组成部分:
//
//   - IdentityPool: 代理检测与轮换, 代理+UA组成一个身份
//   - Session: 绑定一个身份的渲染会话, 打开时预热, 导航后模拟人类动作
//   - BlockDetector: XPath标记和可见文本两种方式识别拦截页
//   - PriceExtractor: CSS组件、正则、页面脚本三种策略提取价格
//   - Scraper: 组合以上组件, 对外提供 ScrapePrice
//
// 渲染引擎通过 Engine 接口隔离, 生产环境使用 RodEngine (go-rod + stealth),
// 测试使用内存实现.
//
//	pool, _ := LoadIdentityPool(ctx, lines, NewEchoChecker("", 5*time.Second), PoolOptions{})
//	detector, _ := NewBlockDetector(nil, nil)
//	extractor, _ := NewPriceExtractor(nil, nil)
//	scraper := NewScraper(pool, NewRodEngineFactory(RodOptions{Headless: true}),
//	    detector, extractor, NewTrafficStats(), DefaultScraperOptions())
//	defer scraper.Close()
//
//	price, err := scraper.ScrapePrice(ctx, "https://www.ozon.ru/product/...")
//
// # 并发
//
// Scraper 和 Session 不可并发使用, 批量抓取时每个worker持有自己的Scraper.
// IdentityPool 和 TrafficStats 可以在worker之间共享.
package crawlers
