package crawlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

// DefaultPriceSelectors 价格组件CSS选择器
var DefaultPriceSelectors = []string{
	`div[data-widget='webPrice'] button span`,
	`div[data-widget='webPrice'] span`,
}

// DefaultPricePatterns 正文正则, 第一个分组为价格
// 空白类包含不换行空格和窄空格
var DefaultPricePatterns = []string{
	`(\d+[\s\x{00A0}\x{2009}\x{202F}.]?\d+)[\s\x{00A0}\x{2009}\x{202F}]*₽`,
	`\D(\d{1,3}(?:[\s\x{00A0}\x{2009}\x{202F}]?\d{3})*(?:[.,]\d+)?)[\s\x{00A0}\x{2009}\x{202F}]*₽`,
	`"price"\s*:\s*"([\d\s\x{00A0}\x{2009}\x{202F}]+)[\s\x{00A0}\x{2009}\x{202F}]*₽"`,
	`finalPrice":"([\d\s\x{00A0}\x{2009}\x{202F}]+)[\s\x{00A0}\x{2009}\x{202F}]*₽`,
}

// 页面内扫描可见的span/div叶子节点
const visiblePriceScript = `() => {
	const re = /(\d[\d\s\u00a0\u2009\u202f]*(?:[.,]\d{1,2})?)\s*(₽|руб)/;
	for (const el of document.querySelectorAll('span, div')) {
		if (el.children.length > 0) continue;
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		const m = (el.textContent || '').match(re);
		if (m) return m[1];
	}
	return '';
}`

var (
	priceSpaces     = strings.NewReplacer(" ", "", "\u00a0", "", "\u2009", "", "\u202f", "", "\t", "", "\n", "")
	priceCurrency   = strings.NewReplacer("₽", "", "руб.", "", "руб", "")
	priceFraction   = regexp.MustCompile(`[.,]\d{1,2}$`)
	priceNonDigits  = regexp.MustCompile(`\D`)
	currencyMarkers = []string{"₽", "руб"}
)

// ScriptRunner 能执行页面脚本的对象, Session实现该接口
type ScriptRunner interface {
	RunScript(ctx context.Context, js string) (string, error)
}

// PriceExtractor 多策略价格提取
type PriceExtractor struct {
	selectors []string
	patterns  []*regexp.Regexp
}

// NewPriceExtractor 参数为空时使用默认值
func NewPriceExtractor(selectors, patterns []string) (*PriceExtractor, error) {
	if len(selectors) == 0 {
		selectors = DefaultPriceSelectors
	}
	if len(patterns) == 0 {
		patterns = DefaultPricePatterns
	}

	e := &PriceExtractor{selectors: selectors}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("价格正则无效 [%s]: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("价格正则缺少分组: %s", p)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

// Extract 依次尝试CSS、正则、页面脚本, 第一个非空结果胜出
// runner为nil时跳过脚本策略
func (e *PriceExtractor) Extract(ctx context.Context, markup string, runner ScriptRunner) (string, bool) {
	if price, ok := e.FromMarkup(markup); ok {
		return price, true
	}
	if runner == nil {
		return "", false
	}

	raw, err := runner.RunScript(ctx, visiblePriceScript)
	if err != nil {
		utils.Debugf("脚本提取价格失败: %v", err)
		return "", false
	}
	if price, ok := NormalizePrice(raw); ok {
		utils.Debugf("通过页面脚本找到价格: %s", price)
		return price, true
	}
	return "", false
}

// FromMarkup 只使用HTML的两种策略
func (e *PriceExtractor) FromMarkup(markup string) (string, bool) {
	if price, ok := e.bySelector(markup); ok {
		utils.Debugf("通过价格组件找到价格: %s", price)
		return price, true
	}
	for _, re := range e.patterns {
		m := re.FindStringSubmatch(markup)
		if len(m) < 2 {
			continue
		}
		if price, ok := NormalizePrice(m[1]); ok {
			utils.Debugf("通过正则找到价格: %s", price)
			return price, true
		}
	}
	return "", false
}

func (e *PriceExtractor) bySelector(markup string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	for _, sel := range e.selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if !hasCurrencyMarker(text) {
				return true
			}
			if price, ok := NormalizePrice(text); ok {
				found = price
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

func hasCurrencyMarker(text string) bool {
	for _, m := range currencyMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// NormalizePrice 去掉货币符号、空格和1-2位小数部分, 只保留数字
func NormalizePrice(raw string) (string, bool) {
	s := priceCurrency.Replace(strings.TrimSpace(raw))
	s = priceSpaces.Replace(s)
	s = priceFraction.ReplaceAllString(s, "")
	s = priceNonDigits.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "", false
	}
	return s, true
}
