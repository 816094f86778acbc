package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// BulkOutputPaths 批量抓取输出文件
type BulkOutputPaths struct {
	ReportPath string
	PricesPath string
}

// WriteBulkReport 写出JSON报告和 url<TAB>price 文本
func (r *Reporter) WriteBulkReport(report *models.BulkReport) (*BulkOutputPaths, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建报告目录失败: %w", err)
	}

	stamp := report.StartTime.Format("20060102_150405")
	paths := &BulkOutputPaths{
		ReportPath: filepath.Join(r.outputDir, fmt.Sprintf("scrape_report_%s.json", stamp)),
		PricesPath: filepath.Join(r.outputDir, fmt.Sprintf("prices_%s.txt", stamp)),
	}

	if err := r.saveJSON(paths.ReportPath, report); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, res := range report.Results {
		price := res.Price
		if !res.Success {
			price = "-"
		}
		sb.WriteString(res.URL)
		sb.WriteByte('\t')
		sb.WriteString(price)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(paths.PricesPath, []byte(sb.String()), 0644); err != nil {
		return nil, fmt.Errorf("写入价格文件失败: %w", err)
	}

	Infof("✅ 报告已生成: %s", paths.ReportPath)
	return paths, nil
}

// PrintBulkSummary 输出批量抓取摘要
func PrintBulkSummary(report *models.BulkReport) {
	Info("========================================")
	Info("📊 批量抓取完成")
	Info("========================================")
	Infof("运行ID: %s", report.RunID)
	Infof("URL总数: %d", report.TotalURLs)
	Infof("✅ 成功: %d", report.Succeeded)
	Infof("❌ 失败: %d", report.Failed)
	Infof("工作者数: %d", report.Workers)
	Infof("总耗时: %s", time.Duration(report.Duration*float64(time.Second)).Round(time.Second))
	Infof("流量: 发送 %s, 接收 %s",
		FormatBytes(report.Traffic.BytesSent), FormatBytes(report.Traffic.BytesReceived))
	Info("========================================")
}

// PrintCorrectionSummary 输出价格修正摘要
func PrintCorrectionSummary(stats models.CorrectionStats) {
	Info("========================================")
	Info("📊 价格修正完成")
	Info("========================================")
	Infof("总行数: %d", stats.TotalItems)
	Infof("本次处理: %d (续跑跳过 %d)", stats.Processed, stats.Skipped)
	Infof("✅ 已收敛: %d", stats.InTolerance)
	Infof("⚠️  未收敛: %d", stats.Exhausted)
	Infof("❌ 无效行: %d", stats.Invalid)
	Infof("提交次数: %d (失败 %d)", stats.Submissions, stats.SubmitFails)
	Infof("总耗时: %.1f 秒", stats.Duration)
	Info("========================================")
}

func (r *Reporter) saveJSON(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
