package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/core"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
)

func TestTemplateWriter(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "configs", "config.yaml")

	t.Run("首次生成配置文件", func(t *testing.T) {
		tw := NewTemplateWriter(configPath)
		if err := tw.Write(false); err != nil {
			t.Fatalf("生成配置失败: %v", err)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != Template() {
			t.Error("生成的内容应与内置模板一致")
		}
	})

	t.Run("已存在时不覆盖", func(t *testing.T) {
		if err := os.WriteFile(configPath, []byte("custom: true\n"), 0644); err != nil {
			t.Fatal(err)
		}
		err := NewTemplateWriter(configPath).Write(false)
		if !errors.Is(err, ErrConfigExists) {
			t.Fatalf("期望 ErrConfigExists, 实际: %v", err)
		}
		data, _ := os.ReadFile(configPath)
		if string(data) != "custom: true\n" {
			t.Error("已存在的配置不应被修改")
		}
	})

	t.Run("强制覆盖", func(t *testing.T) {
		if err := NewTemplateWriter(configPath).Write(true); err != nil {
			t.Fatal(err)
		}
		data, _ := os.ReadFile(configPath)
		if string(data) != Template() {
			t.Error("强制覆盖后应为模板内容")
		}
	})

	t.Run("默认路径", func(t *testing.T) {
		if got := NewTemplateWriter("").Path(); got != DefaultConfigFile {
			t.Errorf("Path() = %s, 期望 %s", got, DefaultConfigFile)
		}
	})
}

func TestTemplateMatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := NewTemplateWriter(path).Write(false); err != nil {
		t.Fatal(err)
	}

	cfg, err := core.LoadConfig(path)
	if err != nil {
		t.Fatalf("模板应能通过校验: %v", err)
	}

	defaults := models.DefaultConditions()
	if len(cfg.Pricing.Conditions) != len(defaults) {
		t.Fatalf("条件表 %d 项, 期望 %d", len(cfg.Pricing.Conditions), len(defaults))
	}
	for i := range defaults {
		if cfg.Pricing.Conditions[i] != defaults[i] {
			t.Errorf("条件[%d] = %+v, 期望 %+v", i, cfg.Pricing.Conditions[i], defaults[i])
		}
	}
	if cfg.Correction.CheckInterval != 1900*time.Second {
		t.Errorf("check_interval = %s", cfg.Correction.CheckInterval)
	}
	if cfg.Identity.MaxProxies != 10 {
		t.Errorf("max_proxies = %d", cfg.Identity.MaxProxies)
	}
}

func TestValidateFileSize(t *testing.T) {
	tmpDir := t.TempDir()

	small := filepath.Join(tmpDir, "small.yaml")
	if err := os.WriteFile(small, []byte("a: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateFileSize(small); err != nil {
		t.Errorf("小文件不应报错: %v", err)
	}

	large := filepath.Join(tmpDir, "large.yaml")
	if err := os.WriteFile(large, make([]byte, MaxConfigFileSize+1), 0644); err != nil {
		t.Fatal(err)
	}
	var ce *models.ConfigError
	if err := ValidateFileSize(large); !errors.As(err, &ce) {
		t.Errorf("大文件应返回ConfigError, 实际: %v", err)
	}

	if err := ValidateFileSize(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("文件不存在应报错")
	}
}
