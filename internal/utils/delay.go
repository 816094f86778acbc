package utils

import (
	"fmt"
	"math/rand"
	"time"
)

// DelayRange 随机延迟区间 [Min, Max]
type DelayRange struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// NewDelayRange 以秒为单位创建区间
func NewDelayRange(minSec, maxSec float64) DelayRange {
	return DelayRange{
		Min: time.Duration(minSec * float64(time.Second)),
		Max: time.Duration(maxSec * float64(time.Second)),
	}
}

// Pick 在区间内均匀取一个值
func (r DelayRange) Pick() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int63n(int64(r.Max-r.Min)+1))
}

// Validate 检查区间合法
func (r DelayRange) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("延迟不能为负数: %s", r)
	}
	if r.Max < r.Min {
		return fmt.Errorf("延迟上限小于下限: %s", r)
	}
	return nil
}

// String 日志输出
func (r DelayRange) String() string {
	return fmt.Sprintf("%s~%s", r.Min, r.Max)
}
