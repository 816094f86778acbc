package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/core"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/crawlers"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

// checkResult 一项环境检查
type checkResult struct {
	name   string
	ok     bool
	fatal  bool // 失败时是否影响运行
	detail string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "检查运行环境 (浏览器、凭据、代理、目录)",
	RunE: func(cmd *cobra.Command, args []string) error {
		results := runChecks(appConfig)

		fmt.Println("==============================================")
		fmt.Println("  OzonPriceCorrector 环境检查")
		fmt.Println("==============================================")

		allOK := true
		for _, r := range results {
			mark := "✅"
			if !r.ok {
				mark = "⚠️ "
				if r.fatal {
					mark = "❌"
					allOK = false
				}
			}
			fmt.Printf("%s %s: %s\n", mark, r.name, r.detail)
		}

		fmt.Println("==============================================")
		if !allOK {
			return fmt.Errorf("环境检查未通过")
		}
		fmt.Println("✨ 环境就绪")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runChecks(cfg *core.Config) []checkResult {
	results := []checkResult{
		{name: "Go运行时", ok: true, detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)},
		checkBrowser(cfg.Browser.Bin),
		checkCredentials(),
		checkProxyFile(cfg.Identity.ProxyFile),
	}

	for _, dir := range []string{cfg.Correction.InboxDir, cfg.Correction.WorkDir, cfg.Logging.LogDir} {
		results = append(results, checkWritableDir(dir))
	}
	return results
}

func checkBrowser(bin string) checkResult {
	r := checkResult{name: "浏览器", fatal: true}
	if bin != "" {
		if _, err := os.Stat(bin); err != nil {
			r.detail = fmt.Sprintf("配置的浏览器不存在: %s", bin)
			return r
		}
		r.ok, r.detail = true, bin
		return r
	}
	if path, has := launcher.LookPath(); has {
		r.ok, r.detail = true, path
		return r
	}
	// rod在首次启动时会自动下载Chromium
	r.fatal = false
	r.detail = "未找到系统浏览器, 首次运行时将自动下载"
	return r
}

func checkCredentials() checkResult {
	r := checkResult{name: "卖家凭据"}
	creds, err := core.LoadCredentials(envFile)
	if err != nil {
		r.detail = "未设置 OZON_CLIENT_ID / OZON_API_KEY (correct和info命令需要)"
		return r
	}
	r.ok = true
	r.detail = "Client-Id " + creds.ClientID
	return r
}

func checkProxyFile(path string) checkResult {
	r := checkResult{name: "代理列表"}
	lines, err := crawlers.ReadProxyFile(path)
	if err != nil {
		r.detail = fmt.Sprintf("无法读取 %s, 将使用直连", path)
		return r
	}
	r.ok = len(lines) > 0
	r.detail = fmt.Sprintf("%s (%d行)", path, len(lines))
	if !r.ok {
		r.detail = "未配置代理, 将使用直连"
	}
	return r
}

func checkWritableDir(dir string) checkResult {
	r := checkResult{name: "目录 " + dir, fatal: true}
	if err := os.MkdirAll(dir, 0755); err != nil {
		r.detail = err.Error()
		return r
	}
	f, err := os.CreateTemp(dir, ".check-*")
	if err != nil {
		r.detail = "不可写: " + strings.TrimSpace(err.Error())
		return r
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	r.ok, r.detail = true, "可写"
	return r
}
