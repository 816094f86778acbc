// Package pricing 实现分级定价策略: 偏差 → 条件 → 价格三元组
package pricing

import (
	"errors"
	"fmt"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/shopspring/decimal"
)

// 价格区间 [400, 10000] 内必须保证展示折扣大于5%
var (
	discountRuleLow  = decimal.NewFromInt(400)
	discountRuleHigh = decimal.NewFromInt(10000)
	discountRuleMul  = decimal.RequireFromString("0.95")
	minPriceFallback = decimal.RequireFromString("0.9")
	oldPriceFallback = decimal.RequireFromString("1.05")
	one              = decimal.NewFromInt(1)
	hundred          = decimal.NewFromInt(100)
)

// ErrEmptyConditions 条件表为空
var ErrEmptyConditions = errors.New("价格条件表为空")

// Engine 定价策略引擎
// 条件表在构造时复制,之后只读
type Engine struct {
	conditions []models.PriceCondition
}

// NewEngine 创建定价引擎
func NewEngine(conditions []models.PriceCondition) (*Engine, error) {
	if len(conditions) == 0 {
		return nil, ErrEmptyConditions
	}
	for i, c := range conditions {
		if c.PriceMultiplier <= 0 || c.OldPriceMultiplier <= 0 {
			return nil, fmt.Errorf("条件%d: 倍数必须大于0", i)
		}
		if c.MinPriceDiscount < 0 || c.MinPriceDiscount >= 1 {
			return nil, fmt.Errorf("条件%d: 最低价折扣必须在[0,1)之间", i)
		}
	}

	table := make([]models.PriceCondition, len(conditions))
	copy(table, conditions)
	return &Engine{conditions: table}, nil
}

// Conditions 返回条件表副本
func (e *Engine) Conditions() []models.PriceCondition {
	out := make([]models.PriceCondition, len(e.conditions))
	copy(out, e.conditions)
	return out
}

// SelectCondition 按表顺序返回第一个包含offset的条件,都不命中时返回最后一项
func (e *Engine) SelectCondition(offset float64) models.PriceCondition {
	for _, c := range e.conditions {
		if c.Contains(offset) {
			return c
		}
	}
	return e.conditions[len(e.conditions)-1]
}

// ComputeQuote 根据当前基础价和条件计算提交价格
func (e *Engine) ComputeQuote(basePrice float64, c models.PriceCondition) models.PriceQuote {
	base := decimal.NewFromFloat(basePrice)

	oldPrice := base.Mul(decimal.NewFromFloat(c.OldPriceMultiplier))
	candidate := base.Mul(decimal.NewFromFloat(c.PriceMultiplier))

	price := candidate
	if candidate.GreaterThanOrEqual(discountRuleLow) && candidate.LessThanOrEqual(discountRuleHigh) {
		maxAllowed := oldPrice.Mul(discountRuleMul).Floor().Sub(one)
		price = decimal.Min(candidate, maxAllowed)
	}

	minPrice := price.Mul(one.Sub(decimal.NewFromFloat(c.MinPriceDiscount)))
	if minPrice.GreaterThanOrEqual(price) {
		minPrice = price.Mul(minPriceFallback)
	}
	if oldPrice.LessThanOrEqual(price) {
		oldPrice = price.Mul(oldPriceFallback)
	}

	quote := models.PriceQuote{
		OldPrice: roundAmount(oldPrice),
		Price:    roundAmount(price),
		MinPrice: roundAmount(minPrice),
	}
	repaired, _ := RepairQuote(quote)
	if repaired.OldPrice == 0 {
		repaired.OldPrice = repaired.Price + 1
	}
	return repaired
}

// RepairQuote 整数层面的价格顺序修复
// 返回修复后的价格以及是否发生了修改
func RepairQuote(q models.PriceQuote) (models.PriceQuote, bool) {
	orig := q
	if q.Price < 2 {
		q.Price = 2
	}
	if q.MinPrice >= q.Price {
		q.MinPrice = q.Price - 1
	}
	if q.MinPrice < 1 {
		q.MinPrice = 1
	}
	if q.OldPrice < 0 {
		q.OldPrice = 0
	}
	if q.OldPrice > 0 && q.OldPrice <= q.Price {
		q.OldPrice = q.Price + 1
	}
	return q, q != orig
}

// Deviation 店面价相对基准价的偏差(百分比,保留符号)
func Deviation(baseline, current float64) float64 {
	if baseline == 0 {
		return 0
	}
	b := decimal.NewFromFloat(baseline)
	dev, _ := decimal.NewFromFloat(current).Sub(b).Div(b).Mul(hundred).Float64()
	return dev
}

// InTolerance 店面价是否落在 [baseline, baseline×(1+tolerance)]
func InTolerance(baseline, current, tolerance float64) bool {
	b := decimal.NewFromFloat(baseline)
	cur := decimal.NewFromFloat(current)
	upper := b.Mul(one.Add(decimal.NewFromFloat(tolerance)))
	return cur.GreaterThanOrEqual(b) && cur.LessThanOrEqual(upper)
}

// Bounds 容差区间,用于日志
func Bounds(baseline, tolerance float64) (lower, upper float64) {
	return baseline, baseline * (1 + tolerance)
}

func roundAmount(d decimal.Decimal) int64 {
	return d.RoundBank(0).IntPart()
}
