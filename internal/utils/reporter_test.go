package utils

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
)

func TestWriteBulkReport(t *testing.T) {
	dir := t.TempDir()
	report := &models.BulkReport{
		RunID:     "run-1",
		StartTime: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		TotalURLs: 2,
		Succeeded: 1,
		Failed:    1,
		Results: []models.ScrapeResult{
			{URL: "https://www.ozon.ru/product/1/", Price: "1290", Success: true},
			{URL: "https://www.ozon.ru/product/2/", Success: false, Error: "未找到价格"},
		},
	}

	paths, err := NewReporter(dir).WriteBulkReport(report)
	if err != nil {
		t.Fatalf("WriteBulkReport() error = %v", err)
	}

	prices, err := os.ReadFile(paths.PricesPath)
	if err != nil {
		t.Fatalf("价格文件未创建: %v", err)
	}
	want := "https://www.ozon.ru/product/1/\t1290\nhttps://www.ozon.ru/product/2/\t-\n"
	if string(prices) != want {
		t.Errorf("价格文件内容 = %q, 期望 %q", prices, want)
	}

	data, err := os.ReadFile(paths.ReportPath)
	if err != nil {
		t.Fatalf("报告文件未创建: %v", err)
	}
	var decoded models.BulkReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("报告不是合法JSON: %v", err)
	}
	if decoded.RunID != "run-1" || len(decoded.Results) != 2 {
		t.Errorf("报告内容不符: %+v", decoded)
	}
}
