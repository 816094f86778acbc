package models

import (
	"fmt"
	"strings"
)

// MinWorkItemFields 工作文件每行最少字段数
const MinWorkItemFields = 11

// WorkItem 一个商品的价格修正任务
// 行格式: marketplace_id sku offer_id deviation% base old min baseline marketplace name... url
type WorkItem struct {
	ProductID     string
	SKU           string
	OfferID       string
	Deviation     float64 // 百分比
	BasePrice     float64
	OldPrice      float64
	MinPrice      float64
	BaselinePrice float64 // 1C价格
	MarketPrice   float64 // 最近一次抓取到的店面价格
	Name          string
	URL           string

	// 运行时状态,不写入文件
	State    ItemState
	Attempts int
	LineNo   int
}

// ParseWorkItem 解析工作文件中的一行
func ParseWorkItem(line string, lineNo int) (*WorkItem, error) {
	parts := strings.Fields(line)
	if len(parts) < MinWorkItemFields {
		return nil, &ValidationError{
			Field:      "line",
			Value:      line,
			Line:       lineNo,
			Reason:     fmt.Sprintf("字段数不足: %d < %d", len(parts), MinWorkItemFields),
			Suggestion: "id sku offer deviation% base old min baseline market name... url",
		}
	}

	item := &WorkItem{
		ProductID: parts[0],
		SKU:       parts[1],
		OfferID:   parts[2],
		Name:      strings.Join(parts[9:len(parts)-1], " "),
		URL:       parts[len(parts)-1],
		State:     ItemPending,
		LineNo:    lineNo,
	}

	numeric := []struct {
		field string
		raw   string
		dst   *float64
	}{
		{"deviation", strings.TrimSuffix(parts[3], "%"), &item.Deviation},
		{"base_price", parts[4], &item.BasePrice},
		{"old_price", parts[5], &item.OldPrice},
		{"min_price", parts[6], &item.MinPrice},
		{"baseline_price", parts[7], &item.BaselinePrice},
		{"marketplace_price", parts[8], &item.MarketPrice},
	}
	for _, n := range numeric {
		v, err := parseAmount(n.raw)
		if err != nil {
			return nil, &ValidationError{Field: n.field, Value: n.raw, Line: lineNo, Reason: "不是数字"}
		}
		*n.dst = v
	}

	if item.BasePrice <= 0 {
		return nil, &ValidationError{
			Field:  "base_price",
			Value:  parts[4],
			Line:   lineNo,
			Reason: "基础价必须大于0",
		}
	}
	if item.BaselinePrice <= 0 {
		return nil, &ValidationError{
			Field:  "baseline_price",
			Value:  parts[7],
			Line:   lineNo,
			Reason: "基准价必须大于0",
		}
	}
	if err := ValidateURL(item.URL); err != nil {
		return nil, &ValidationError{Field: "url", Value: item.URL, Line: lineNo, Reason: err.Error()}
	}

	return item, nil
}

// Line 按原字段顺序输出一行
func (w *WorkItem) Line() string {
	fields := []string{
		w.ProductID,
		w.SKU,
		w.OfferID,
		fmt.Sprintf("%.2f%%", w.Deviation),
		formatAmount(w.BasePrice),
		formatAmount(w.OldPrice),
		formatAmount(w.MinPrice),
		formatAmount(w.BaselinePrice),
		formatAmount(w.MarketPrice),
	}
	if w.Name != "" {
		fields = append(fields, w.Name)
	}
	fields = append(fields, w.URL)
	return strings.Join(fields, " ")
}

// ApplyQuote 写入新的提交价格,并把跟踪的基础价更新为提交价
func (w *WorkItem) ApplyQuote(q PriceQuote) {
	w.BasePrice = float64(q.Price)
	w.OldPrice = float64(q.OldPrice)
	w.MinPrice = float64(q.MinPrice)
}
