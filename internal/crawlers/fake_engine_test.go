package crawlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

const productPage = `<html><body>
<div data-widget="webProductHeading"><h1>Кофе в зернах 1 кг</h1></div>
<div data-widget="webPrice"><button><span>Купить</span><span>1 299 ₽</span></button></div>
</body></html>`

const blockPage = `<html><body><div class="fab-chlg"><p>Подождите</p></div></body></html>`

const blockWithButtonPage = `<html><body>
<div class="fab-chlg"><button>Обновить</button></div>
</body></html>`

// fakeSite 多个fakeEngine共享的"网站"
type fakeSite struct {
	mu         sync.Mutex
	pages      map[string][]string // 每次访问依次返回, 用完后重复最后一个
	visits     map[string]int
	afterClick string // 点击"Обновить"后的页面, 为空表示点击无效
	revealOK   bool   // 脚本点击是否成功
	scriptText string // 可见文本脚本返回值
	navErr     error
	factoryErr error

	engines []*fakeEngine
}

func newFakeSite(pages map[string][]string) *fakeSite {
	return &fakeSite{pages: pages, visits: make(map[string]int)}
}

func (s *fakeSite) factory(_ context.Context, id models.Identity) (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.factoryErr != nil {
		return nil, s.factoryErr
	}
	e := &fakeEngine{site: s, identity: id}
	s.engines = append(s.engines, e)
	return e, nil
}

func (s *fakeSite) engineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.engines)
}

func (s *fakeSite) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.engines {
		if e.closed {
			n++
		}
	}
	return n
}

type fakeEngine struct {
	site     *fakeSite
	identity models.Identity
	markup   string
	closed   bool
	scripts  int
	reveals  int
}

func (e *fakeEngine) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if e.site.navErr != nil {
		return e.site.navErr
	}
	seq, ok := e.site.pages[url]
	if !ok || len(seq) == 0 {
		e.markup = "<html><body><p>" + url + "</p></body></html>"
		return nil
	}
	i := e.site.visits[url]
	e.site.visits[url] = i + 1
	if i >= len(seq) {
		i = len(seq) - 1
	}
	e.markup = seq[i]
	return nil
}

func (e *fakeEngine) CurrentMarkup(ctx context.Context) (string, error) {
	return e.markup, ctx.Err()
}

func (e *fakeEngine) RunScript(_ context.Context, js string) (string, error) {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	e.scripts++
	switch js {
	case revealScript:
		e.reveals++
		if e.site.revealOK && e.site.afterClick != "" {
			e.markup = e.site.afterClick
			return "true", nil
		}
		return "false", nil
	case visiblePriceScript:
		return e.site.scriptText, nil
	}
	return "", nil
}

func (e *fakeEngine) ClickIfPresent(_ context.Context, xpath string, _ time.Duration) (bool, error) {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if e.site.afterClick == "" || !strings.Contains(xpath, "Обновить") || !strings.Contains(e.markup, "Обновить") {
		return false, nil
	}
	e.markup = e.site.afterClick
	return true, nil
}

func (e *fakeEngine) Close() error {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	e.closed = true
	return nil
}

// 测试用会话参数: 无等待, 无预热
func testSessionOptions() SessionOptions {
	return SessionOptions{}
}

func testScraperOptions(maxAttempts int) ScraperOptions {
	return ScraperOptions{
		Retry:   testBackoff(maxAttempts),
		Session: testSessionOptions(),
	}
}

func testBackoff(maxAttempts int) utils.Backoff {
	return utils.Backoff{MaxAttempts: maxAttempts}
}
