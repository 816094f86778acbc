package crawlers

import (
	"errors"
	"fmt"
	"math/rand"
)

// StaticUserAgents 生成器失败时使用的固定列表
var StaticUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 YaBrowser/24.4.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 YaBrowser/24.1.0.0 Safari/537.36",
}

var uaPlatforms = []string{
	"Windows NT 10.0; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"X11; Linux x86_64",
}

// 当前主流Chrome大版本, 与Yandex浏览器版本号对应
var chromeMajors = []int{120, 121, 122, 123, 124, 125, 126}

// UserAgentGenerator 生成UA
type UserAgentGenerator func() (string, error)

// GenerateUserAgent 随机生成Chrome或Yandex浏览器UA
func GenerateUserAgent() (string, error) {
	if len(uaPlatforms) == 0 || len(chromeMajors) == 0 {
		return "", errors.New("UA模板为空")
	}
	platform := uaPlatforms[rand.Intn(len(uaPlatforms))]
	major := chromeMajors[rand.Intn(len(chromeMajors))]
	chrome := fmt.Sprintf("%d.0.%d.%d", major, 6000+rand.Intn(500), rand.Intn(200))

	if rand.Intn(3) == 0 {
		// YaBrowser 24.x 对应 Chrome 120+
		ya := fmt.Sprintf("24.%d.%d.%d", 1+rand.Intn(7), rand.Intn(6), 500+rand.Intn(400))
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s YaBrowser/%s Safari/537.36",
			platform, chrome, ya), nil
	}
	return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		platform, chrome), nil
}
