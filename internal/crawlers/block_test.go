package crawlers

import (
	"strings"
	"testing"
)

func TestIsBlocked(t *testing.T) {
	detector, err := NewBlockDetector(nil, nil)
	if err != nil {
		t.Fatalf("创建检测器失败: %v", err)
	}

	tests := []struct {
		name     string
		markup   string
		expected bool
		marker   string
	}{
		{
			name:     "挑战容器",
			markup:   blockPage,
			expected: true,
			marker:   "fab-chlg",
		},
		{
			name:     "访问受限提示",
			markup:   `<html><body><span>Доступ ограничен</span></body></html>`,
			expected: true,
			marker:   "Доступ ограничен",
		},
		{
			name:     "验证码iframe",
			markup:   `<html><body><iframe src="https://example.com/captcha?id=1"></iframe></body></html>`,
			expected: true,
			marker:   "captcha",
		},
		{
			name:     "可见文本中的安全检查提示",
			markup:   `<html><body><p>Проверка безопасности браузера</p></body></html>`,
			expected: true,
			marker:   "text:проверка безопасности",
		},
		{
			name:     "扫地机器人商品页",
			markup:   `<html><body><h1>Робот-пылесос Xiaomi</h1><p>Безопасность детей: защита от падения</p><div data-widget="webPrice"><button><span>12 990 ₽</span></button></div></body></html>`,
			expected: false,
		},
		{
			name:     "正常商品页",
			markup:   productPage,
			expected: false,
		},
		{
			name:     "脚本中的关键字不算可见文本",
			markup:   `<html><head><script>var t = "captcha";</script></head><body><p>Товар</p></body></html>`,
			expected: false,
		},
		{
			name:     "空页面",
			markup:   "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, marker := detector.IsBlocked(tt.markup)
			if blocked != tt.expected {
				t.Errorf("IsBlocked() = %v, 期望 %v (标记: %s)", blocked, tt.expected, marker)
			}
			if tt.marker != "" && !strings.Contains(marker, tt.marker) {
				t.Errorf("命中标记 = %q, 期望包含 %q", marker, tt.marker)
			}
		})
	}
}

func TestNewBlockDetectorInvalidXPath(t *testing.T) {
	if _, err := NewBlockDetector([]string{"//div[@class="}, nil); err == nil {
		t.Error("无效XPath应返回错误")
	}
}
