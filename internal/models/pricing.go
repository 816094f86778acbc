package models

import "fmt"

// PriceCondition 价格调整条件
// [MinOffset, MaxOffset] 为偏差区间(百分比,两端闭区间)
type PriceCondition struct {
	MinOffset          float64 `mapstructure:"min_offset" json:"min_offset"`
	MaxOffset          float64 `mapstructure:"max_offset" json:"max_offset"`
	OldPriceMultiplier float64 `mapstructure:"old_price_multiplier" json:"old_price_multiplier"`
	PriceMultiplier    float64 `mapstructure:"price_multiplier" json:"price_multiplier"`
	MinPriceDiscount   float64 `mapstructure:"min_price_discount" json:"min_price_discount"`
}

// Contains 偏差是否落在区间内
func (c PriceCondition) Contains(offset float64) bool {
	return c.MinOffset <= offset && offset <= c.MaxOffset
}

// String 日志输出
func (c PriceCondition) String() string {
	return fmt.Sprintf("[%.0f%%, %.0f%%] old×%.2f price×%.2f min-%.0f%%",
		c.MinOffset, c.MaxOffset, c.OldPriceMultiplier, c.PriceMultiplier, c.MinPriceDiscount*100)
}

// DefaultConditions 默认条件表
// 区间边界不连续也不覆盖全部范围,按顺序首个命中,未命中取最后一项
func DefaultConditions() []PriceCondition {
	return []PriceCondition{
		{MinOffset: -100, MaxOffset: -40, OldPriceMultiplier: 1.20, PriceMultiplier: 1.20, MinPriceDiscount: 0.10},
		{MinOffset: -40, MaxOffset: -30, OldPriceMultiplier: 1.18, PriceMultiplier: 1.18, MinPriceDiscount: 0.10},
		{MinOffset: -30, MaxOffset: -20, OldPriceMultiplier: 1.16, PriceMultiplier: 1.16, MinPriceDiscount: 0.10},
		{MinOffset: -20, MaxOffset: -10, OldPriceMultiplier: 1.14, PriceMultiplier: 1.14, MinPriceDiscount: 0.10},
		{MinOffset: -10, MaxOffset: 3, OldPriceMultiplier: 1.12, PriceMultiplier: 1.12, MinPriceDiscount: 0.10},
		{MinOffset: 3, MaxOffset: 15, OldPriceMultiplier: 0.93, PriceMultiplier: 0.93, MinPriceDiscount: 0.03},
	}
}

// PriceQuote 提交给定价接口的价格三元组(整数货币单位)
// 不变量: MinPrice < Price < OldPrice, OldPrice为0表示不设划线价
type PriceQuote struct {
	OldPrice int64 `json:"old_price"`
	Price    int64 `json:"price"`
	MinPrice int64 `json:"min_price"`
}

// Valid 是否满足价格顺序
func (q PriceQuote) Valid() bool {
	if q.MinPrice < 1 || q.MinPrice >= q.Price {
		return false
	}
	return q.OldPrice == 0 || q.OldPrice > q.Price
}

// String 日志输出
func (q PriceQuote) String() string {
	return fmt.Sprintf("old=%d price=%d min=%d", q.OldPrice, q.Price, q.MinPrice)
}
