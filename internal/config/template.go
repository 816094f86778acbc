package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
)

const (
	// DefaultConfigFile 默认配置文件路径
	DefaultConfigFile = "configs/config.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

// ErrConfigExists 目标配置文件已存在
var ErrConfigExists = errors.New("配置文件已存在")

//go:embed config_template.yaml
var defaultConfigTemplate string

// Template 内置的配置模板
func Template() string {
	return defaultConfigTemplate
}

// TemplateWriter 配置模板生成器
type TemplateWriter struct {
	configPath string
}

// NewTemplateWriter 创建模板生成器
func NewTemplateWriter(configPath string) *TemplateWriter {
	if configPath == "" {
		configPath = DefaultConfigFile
	}
	return &TemplateWriter{configPath: configPath}
}

// Path 目标路径
func (tw *TemplateWriter) Path() string {
	return tw.configPath
}

// Write 写入模板, 文件已存在且force为false时返回ErrConfigExists
func (tw *TemplateWriter) Write(force bool) error {
	if _, err := os.Stat(tw.configPath); err == nil && !force {
		return fmt.Errorf("%w: %s (使用 --force 覆盖)", ErrConfigExists, tw.configPath)
	}

	dir := filepath.Dir(tw.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
	}
	if err := models.WriteFileAtomic(tw.configPath, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("无法生成配置文件 [%s]: %w", tw.configPath, err)
	}
	return nil
}

// ValidateFileSize 验证配置文件大小是否在限制内
func ValidateFileSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("无法读取配置文件信息 [%s]: %w", path, err)
	}

	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: path,
			Cause: fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)",
				info.Size(), MaxConfigFileSize),
		}
	}
	return nil
}
