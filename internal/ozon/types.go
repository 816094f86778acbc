package ozon

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceItem /v1/product/import/prices 的单个商品价格
// 金额字段按接口要求为字符串
type PriceItem struct {
	OfferID                       string `json:"offer_id"`
	OldPrice                      string `json:"old_price"`
	Price                         string `json:"price"`
	MinPrice                      string `json:"min_price"`
	CurrencyCode                  string `json:"currency_code"`
	MinPriceForAutoActionsEnabled bool   `json:"min_price_for_auto_actions_enabled"`
	PriceStrategyEnabled          string `json:"price_strategy_enabled"`
	AutoActionEnabled             string `json:"auto_action_enabled"`
}

// ImportPricesRequest 价格更新请求
type ImportPricesRequest struct {
	Prices []PriceItem `json:"prices"`
}

// ImportPricesResponse 价格更新响应
type ImportPricesResponse struct {
	Result []ImportPriceResult `json:"result"`
}

// ImportPriceResult 单个商品的更新结果
type ImportPriceResult struct {
	ProductID int64       `json:"product_id,omitempty"`
	OfferID   string      `json:"offer_id"`
	Updated   bool        `json:"updated"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// ItemError 商品级校验错误
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ItemError) String() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ProductInfoRequest /v3/product/info/list 请求
type ProductInfoRequest struct {
	OfferID []string `json:"offer_id"`
}

// ProductInfoResponse 商品信息响应
type ProductInfoResponse struct {
	Items []ProductInfo `json:"items"`
}

// ProductInfo 商品价格信息
type ProductInfo struct {
	ID           int64  `json:"id"`
	OfferID      string `json:"offer_id"`
	Name         string `json:"name"`
	Price        Amount `json:"price"`
	OldPrice     Amount `json:"old_price"`
	MinPrice     Amount `json:"min_price"`
	CurrencyCode string `json:"currency_code"`
}

// errorResponse 接口返回的通用错误体
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Amount 宽松解析的金额: 字符串、数字、空串和null都接受
type Amount struct {
	decimal.Decimal
}

// UnmarshalJSON 实现json.Unmarshaler
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if raw == "" || raw == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("金额格式无效 %q: %w", raw, err)
	}
	a.Decimal = d
	return nil
}
