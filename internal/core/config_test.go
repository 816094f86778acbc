package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/ozon"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Ozon.BaseURL != ozon.DefaultBaseURL {
		t.Errorf("ozon.base_url = %s", cfg.Ozon.BaseURL)
	}
	if cfg.Pricing.Tolerance != 0.05 {
		t.Errorf("pricing.tolerance = %v, 期望 0.05", cfg.Pricing.Tolerance)
	}
	if len(cfg.Pricing.Conditions) != len(models.DefaultConditions()) {
		t.Errorf("条件表应使用默认值, 实际 %d 项", len(cfg.Pricing.Conditions))
	}
	if cfg.Correction.MaxAttempts != 5 || cfg.Correction.NoPriceDelay != 20*time.Second {
		t.Errorf("correction = %+v", cfg.Correction)
	}
	if cfg.Correction.SettleDelay.Min != 2*time.Second || cfg.Correction.SettleDelay.Max != 5*time.Second {
		t.Errorf("correction.settle_delay = %s", cfg.Correction.SettleDelay)
	}
	if cfg.Correction.ItemDelay.Min != 3*time.Second || cfg.Correction.ItemDelay.Max != 5*time.Second {
		t.Errorf("correction.item_delay = %s", cfg.Correction.ItemDelay)
	}
	if cfg.Correction.StaleAfter != 30*time.Minute || cfg.Correction.CheckInterval != 1900*time.Second {
		t.Errorf("inbox 时间参数 = %s / %s", cfg.Correction.StaleAfter, cfg.Correction.CheckInterval)
	}
	if cfg.Bulk.RetryCeiling != 10 {
		t.Errorf("bulk.retry_ceiling = %d", cfg.Bulk.RetryCeiling)
	}
	if cfg.Metrics.Listen != "" {
		t.Errorf("metrics 默认不启动")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	content := `
ozon:
  max_attempts: 4
  backoff_base: 500ms
identity:
  max_proxies: 0
pricing:
  tolerance: 0.1
  conditions:
    - min_offset: -100
      max_offset: 0
      old_price_multiplier: 1.3
      price_multiplier: 1.2
      min_price_discount: 0.1
correction:
  no_price_delay: 5s
  item_delay:
    min: 1s
    max: 2s
bulk:
  workers: 8
`
	cfg, err := LoadConfig(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Ozon.MaxAttempts != 4 || cfg.Ozon.BackoffBase != 500*time.Millisecond {
		t.Errorf("ozon = %+v", cfg.Ozon)
	}
	if cfg.Identity.MaxProxies != 0 {
		t.Errorf("identity.max_proxies = %d, 期望 0(不限制)", cfg.Identity.MaxProxies)
	}
	if len(cfg.Pricing.Conditions) != 1 || cfg.Pricing.Conditions[0].OldPriceMultiplier != 1.3 {
		t.Errorf("pricing.conditions = %+v", cfg.Pricing.Conditions)
	}
	if cfg.Correction.NoPriceDelay != 5*time.Second {
		t.Errorf("correction.no_price_delay = %s", cfg.Correction.NoPriceDelay)
	}
	if cfg.Correction.ItemDelay.Max != 2*time.Second {
		t.Errorf("correction.item_delay = %s", cfg.Correction.ItemDelay)
	}

	opts := cfg.ClientOptions()
	if opts.Retry.MaxAttempts != 4 || opts.Retry.Base != 500*time.Millisecond || opts.Retry.Ceiling != 60*time.Second {
		t.Errorf("ClientOptions().Retry = %+v", opts.Retry)
	}
	if got := cfg.CorrectionOptions(); got.Tolerance != 0.1 || got.NoPriceDelay != 5*time.Second {
		t.Errorf("CorrectionOptions() = %+v", got)
	}
	if got := cfg.BulkOptions(); got.Workers != 8 || got.StartInterval != time.Second {
		t.Errorf("BulkOptions() = %+v", got)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"容差超出范围", "pricing:\n  tolerance: 1.5\n"},
		{"尝试次数为0", "correction:\n  max_attempts: 0\n"},
		{"worker数过大", "bulk:\n  workers: 100\n"},
		{"延迟区间颠倒", "correction:\n  settle_delay:\n    min: 5s\n    max: 1s\n"},
		{"代理数为负", "identity:\n  max_proxies: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("期望返回校验错误")
			}
			var ce *models.ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("错误类型 = %T, 期望 *models.ConfigError", err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("指定的配置文件不存在应返回错误")
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Run("从环境文件加载", func(t *testing.T) {
		t.Setenv("OZON_CLIENT_ID", "")
		t.Setenv("OZON_API_KEY", "")
		os.Unsetenv("OZON_CLIENT_ID")
		os.Unsetenv("OZON_API_KEY")

		envFile := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(envFile, []byte("OZON_CLIENT_ID=12345\nOZON_API_KEY=secret-key-value\n"), 0600); err != nil {
			t.Fatal(err)
		}

		creds, err := LoadCredentials(envFile)
		if err != nil {
			t.Fatalf("LoadCredentials() error = %v", err)
		}
		if creds.ClientID != "12345" || creds.APIKey != "secret-key-value" {
			t.Errorf("creds = %+v", creds)
		}
	})

	t.Run("环境变量优先", func(t *testing.T) {
		t.Setenv("OZON_CLIENT_ID", "from-env")
		t.Setenv("OZON_API_KEY", "env-key")

		envFile := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(envFile, []byte("OZON_CLIENT_ID=from-file\n"), 0600); err != nil {
			t.Fatal(err)
		}

		creds, err := LoadCredentials(envFile)
		if err != nil {
			t.Fatal(err)
		}
		if creds.ClientID != "from-env" {
			t.Errorf("ClientID = %s, 期望环境变量的值", creds.ClientID)
		}
	})

	t.Run("缺少凭据", func(t *testing.T) {
		t.Setenv("OZON_CLIENT_ID", "")
		t.Setenv("OZON_API_KEY", "")
		os.Unsetenv("OZON_CLIENT_ID")
		os.Unsetenv("OZON_API_KEY")

		_, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.env"))
		if !errors.Is(err, ozon.ErrMissingCredentials) {
			t.Errorf("LoadCredentials() error = %v, 期望 ErrMissingCredentials", err)
		}
	})
}
