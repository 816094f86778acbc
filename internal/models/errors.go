package models

import "fmt"

// ValidationError 输入校验错误
// 用于工作文件行、代理行等文本输入的解析失败
type ValidationError struct {
	// Field 出错的字段
	Field string

	// Value 原始值
	Value string

	// Line 行号(从1开始,0表示未知)
	Line int

	// Reason 错误原因
	Reason string

	// Suggestion 修复建议 (可选)
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("校验失败 [%s=%q]: %s", e.Field, e.Value, e.Reason)
	if e.Line > 0 {
		msg = fmt.Sprintf("第%d行 %s", e.Line, msg)
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// ConfigError 配置文件错误
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
