package crawlers

import (
	"context"
	"math/rand"
	"sync"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

// PoolOptions 身份池参数
type PoolOptions struct {
	// MaxProxies 最多保留的可用代理, 0为不限制
	MaxProxies int
	// CheckWorkers 并发检测数
	CheckWorkers int
	// UserAgents 静态UA列表, 为空使用StaticUserAgents
	UserAgents []string
	// Generator 动态UA生成器, 为nil使用GenerateUserAgent
	Generator UserAgentGenerator
}

// IdentityPool 代理+UA身份池
// 加载后代理列表只读, 轮换下标由互斥锁保护
type IdentityPool struct {
	mu      sync.Mutex
	proxies []models.ProxyEndpoint
	next    int

	userAgents []string
	generator  UserAgentGenerator
}

// LoadIdentityPool 解析并检测候选代理, 保持输入顺序
// 没有可用代理时池中只有直连伪端点; 只有ctx取消才返回错误
func LoadIdentityPool(ctx context.Context, candidates []string, checker ProxyChecker, opts PoolOptions) (*IdentityPool, error) {
	parsed := make([]models.ProxyEndpoint, 0, len(candidates))
	for _, line := range candidates {
		ep, err := models.ParseProxyLine(line)
		if err != nil {
			utils.Warnf("⚠️  跳过代理: %v", err)
			continue
		}
		parsed = append(parsed, ep)
	}

	alive := make([]bool, len(parsed))
	if checker == nil {
		for i := range alive {
			alive[i] = true
		}
	} else {
		workers := opts.CheckWorkers
		if workers <= 0 {
			workers = 8
		}
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for i, ep := range parsed {
			wg.Add(1)
			go func(i int, ep models.ProxyEndpoint) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-sem }()

				if err := checker.Check(ctx, ep); err != nil {
					utils.Warnf("⚠️  代理不可用 %s: %v", ep, err)
					return
				}
				alive[i] = true
			}(i, ep)
		}
		wg.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool := &IdentityPool{
		userAgents: opts.UserAgents,
		generator:  opts.Generator,
	}
	if len(pool.userAgents) == 0 {
		pool.userAgents = StaticUserAgents
	}
	if pool.generator == nil {
		pool.generator = GenerateUserAgent
	}

	for i, ep := range parsed {
		if !alive[i] {
			continue
		}
		ep.Alive = true
		pool.proxies = append(pool.proxies, ep)
		if opts.MaxProxies > 0 && len(pool.proxies) >= opts.MaxProxies {
			break
		}
	}

	if len(pool.proxies) == 0 {
		if len(candidates) > 0 {
			utils.Warn("⚠️  没有可用代理, 使用直连")
		}
		pool.proxies = []models.ProxyEndpoint{models.DirectEndpoint()}
	} else {
		utils.Infof("✅ 可用代理: %d/%d", len(pool.proxies), len(parsed))
	}
	return pool, nil
}

// ReadProxyFile 读取代理文件, 文件路径为空返回空列表
func ReadProxyFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	return utils.ReadLinesFromFile(path)
}

// Size 代理数量(直连计为1)
func (p *IdentityPool) Size() int {
	return len(p.proxies)
}

// Proxies 代理列表副本
func (p *IdentityPool) Proxies() []models.ProxyEndpoint {
	out := make([]models.ProxyEndpoint, len(p.proxies))
	copy(out, p.proxies)
	return out
}

// NextProxy 轮询返回下一个代理
func (p *IdentityPool) NextProxy() models.ProxyEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep := p.proxies[p.next]
	p.next = (p.next + 1) % len(p.proxies)
	return ep
}

// RandomUserAgent 优先动态生成, 失败时从静态列表随机选择
func (p *IdentityPool) RandomUserAgent() string {
	if p.generator != nil {
		if ua, err := p.generator(); err == nil && ua != "" {
			return ua
		} else if err != nil {
			utils.Debugf("动态生成UA失败, 使用静态列表: %v", err)
		}
	}
	return p.userAgents[rand.Intn(len(p.userAgents))]
}

// NextIdentity 下一个代理 + 随机UA
func (p *IdentityPool) NextIdentity() models.Identity {
	return models.Identity{
		Proxy:     p.NextProxy(),
		UserAgent: p.RandomUserAgent(),
	}
}
