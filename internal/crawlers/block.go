package crawlers

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// DefaultBlockMarkers 拦截页的结构特征, 按顺序检查
var DefaultBlockMarkers = []string{
	`//div[contains(@class, 'fab-chlg')]`,
	`//*[contains(text(), 'Подтвердите, что вы не робот')]`,
	`//*[contains(text(), 'Доступ ограничен')]`,
	`//div[contains(@class, 'security-container')]`,
	`//iframe[contains(@src, 'captcha')]`,
	`//div[contains(@class, 'captcha')]`,
}

// DefaultBlockPhrases 可见文本中的拦截提示
var DefaultBlockPhrases = []string{
	"Подтвердите, что вы не робот",
	"Проверка безопасности",
	"captcha",
	"капча",
	"Доступ ограничен",
}

// 不参与可见文本扫描的元素
var invisibleElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

type blockMarker struct {
	raw  string
	expr *xpath.Expr
}

// BlockDetector 判断页面是否为反爬拦截页
type BlockDetector struct {
	markers []blockMarker
	phrases []string
}

// NewBlockDetector 编译XPath标记, 参数为空时使用默认值
func NewBlockDetector(markers, phrases []string) (*BlockDetector, error) {
	if len(markers) == 0 {
		markers = DefaultBlockMarkers
	}
	if phrases == nil {
		phrases = DefaultBlockPhrases
	}

	d := &BlockDetector{}
	for _, m := range markers {
		expr, err := xpath.Compile(m)
		if err != nil {
			return nil, fmt.Errorf("拦截标记XPath无效 [%s]: %w", m, err)
		}
		d.markers = append(d.markers, blockMarker{raw: m, expr: expr})
	}
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			d.phrases = append(d.phrases, strings.ToLower(p))
		}
	}
	return d, nil
}

// IsBlocked 返回是否拦截以及命中的标记
func (d *BlockDetector) IsBlocked(markup string) (bool, string) {
	if strings.TrimSpace(markup) == "" {
		return false, ""
	}
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return false, ""
	}

	for _, m := range d.markers {
		if htmlquery.QuerySelector(doc, m.expr) != nil {
			return true, m.raw
		}
	}

	text := strings.ToLower(visibleText(doc))
	for _, p := range d.phrases {
		if strings.Contains(text, p) {
			return true, "text:" + p
		}
	}
	return false, ""
}

// visibleText 拼接文本节点, 跳过脚本和样式
func visibleText(root *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && invisibleElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String()
}
