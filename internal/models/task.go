package models

// ItemState 工作项状态
type ItemState string

const (
	ItemPending     ItemState = "pending"      // 待处理
	ItemScraping    ItemState = "scraping"     // 抓取价格
	ItemEvaluating  ItemState = "evaluating"   // 计算偏差
	ItemInTolerance ItemState = "in_tolerance" // 已在容差内(终态)
	ItemCorrecting  ItemState = "correcting"   // 计算新价格
	ItemSubmitting  ItemState = "submitting"   // 提交接口
	ItemExhausted   ItemState = "exhausted"    // 尝试次数用尽(终态)
	ItemInvalid     ItemState = "invalid"      // 行格式无效,保持原样
)

// Terminal 是否为终态
func (s ItemState) Terminal() bool {
	return s == ItemInTolerance || s == ItemExhausted || s == ItemInvalid
}

// CorrectionStats 价格修正统计
type CorrectionStats struct {
	TotalItems  int     `json:"total_items"`  // 总行数
	Processed   int     `json:"processed"`    // 本次处理的行数
	Skipped     int     `json:"skipped"`      // 续跑时跳过的已完成行
	InTolerance int     `json:"in_tolerance"` // 收敛
	Exhausted   int     `json:"exhausted"`    // 未收敛
	Invalid     int     `json:"invalid"`      // 无效行
	Submissions int     `json:"submissions"`  // 提交次数
	SubmitFails int     `json:"submit_fails"` // 提交失败次数
	Duration    float64 `json:"duration"`     // 总耗时(秒)
}

// Record 按终态计数
func (s *CorrectionStats) Record(state ItemState) {
	s.Processed++
	switch state {
	case ItemInTolerance:
		s.InTolerance++
	case ItemExhausted:
		s.Exhausted++
	case ItemInvalid:
		s.Invalid++
	}
}
