package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/crawlers"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/ozon"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Ozon       OzonConfig       `mapstructure:"ozon"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Correction CorrectionConfig `mapstructure:"correction"`
	Bulk       BulkConfig       `mapstructure:"bulk"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OzonConfig 卖家接口配置
type OzonConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// IdentityConfig 代理身份配置
type IdentityConfig struct {
	ProxyFile    string        `mapstructure:"proxy_file"`
	EchoURL      string        `mapstructure:"echo_url"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
	MaxProxies   int           `mapstructure:"max_proxies"` // 0为不限制
	CheckWorkers int           `mapstructure:"check_workers"`
	SkipCheck    bool          `mapstructure:"skip_check"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	Bin               string        `mapstructure:"bin"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	AcceptLanguage    string        `mapstructure:"accept_language"`
	WarmupURLs        []string      `mapstructure:"warmup_urls"`
}

// ScrapeConfig 商品页抓取配置
type ScrapeConfig struct {
	MaxRetries     int              `mapstructure:"max_retries"`
	RequestDelay   utils.DelayRange `mapstructure:"request_delay"`
	RotateDelay    time.Duration    `mapstructure:"rotate_delay"`
	ClickWait      time.Duration    `mapstructure:"click_wait"`
	SettleDelay    time.Duration    `mapstructure:"settle_delay"`
	DebugDir       string           `mapstructure:"debug_dir"`
	PriceSelectors []string         `mapstructure:"price_selectors"`
	PricePatterns  []string         `mapstructure:"price_patterns"`
	BlockMarkers   []string         `mapstructure:"block_markers"`
	BlockPhrases   []string         `mapstructure:"block_phrases"`
}

// PricingConfig 定价策略配置
type PricingConfig struct {
	Tolerance  float64                 `mapstructure:"tolerance"`
	Conditions []models.PriceCondition `mapstructure:"conditions"`
}

// CorrectionConfig 价格修正循环配置
type CorrectionConfig struct {
	MaxAttempts   int              `mapstructure:"max_attempts"`
	NoPriceDelay  time.Duration    `mapstructure:"no_price_delay"`
	SettleDelay   utils.DelayRange `mapstructure:"settle_delay"`
	ItemDelay     utils.DelayRange `mapstructure:"item_delay"`
	InboxDir      string           `mapstructure:"inbox_dir"`
	WorkDir       string           `mapstructure:"work_dir"`
	ProcessedDir  string           `mapstructure:"processed_dir"`
	SourcePattern string           `mapstructure:"source_pattern"`
	StaleAfter    time.Duration    `mapstructure:"stale_after"`
	CheckInterval time.Duration    `mapstructure:"check_interval"`
	RetryInterval time.Duration    `mapstructure:"retry_interval"`
	DryRun        bool             `mapstructure:"dry_run"`
}

// BulkConfig 批量抓取配置
type BulkConfig struct {
	Workers         int    `mapstructure:"workers"`
	RetryCeiling    int    `mapstructure:"retry_ceiling"`
	BrowserMemoryMB int    `mapstructure:"browser_memory_mb"`
	OutputDir       string `mapstructure:"output_dir"`
}

// MetricsConfig 指标配置, Listen为空不启动
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// 添加配置搜索路径
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		// 用户主目录
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pricecorrector"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在,使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}

	// 条件表是列表, 不适合用SetDefault表达
	if len(config.Pricing.Conditions) == 0 {
		config.Pricing.Conditions = models.DefaultConditions()
	}

	if err := config.Validate(); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: err}
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 7)
	v.SetDefault("logging.rotation.compress", true)

	// 卖家接口
	v.SetDefault("ozon.base_url", ozon.DefaultBaseURL)
	v.SetDefault("ozon.timeout", 30*time.Second)
	v.SetDefault("ozon.max_attempts", 3)
	v.SetDefault("ozon.backoff_base", 2*time.Second)
	v.SetDefault("ozon.backoff_max", 60*time.Second)
	v.SetDefault("ozon.requests_per_second", 1.0)

	// 代理身份
	v.SetDefault("identity.proxy_file", "proxies.txt")
	v.SetDefault("identity.echo_url", crawlers.DefaultEchoURL)
	v.SetDefault("identity.check_timeout", 10*time.Second)
	v.SetDefault("identity.max_proxies", 10)
	v.SetDefault("identity.check_workers", 10)
	v.SetDefault("identity.skip_check", false)

	// 浏览器
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.navigation_timeout", 60*time.Second)
	v.SetDefault("browser.accept_language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	v.SetDefault("browser.warmup_urls", crawlers.DefaultWarmupURLs)

	// 抓取
	v.SetDefault("scrape.max_retries", 4)
	v.SetDefault("scrape.request_delay.min", 2*time.Second)
	v.SetDefault("scrape.request_delay.max", 4*time.Second)
	v.SetDefault("scrape.rotate_delay", time.Second)
	v.SetDefault("scrape.click_wait", 5*time.Second)
	v.SetDefault("scrape.settle_delay", 5*time.Second)
	v.SetDefault("scrape.debug_dir", "debug")
	v.SetDefault("scrape.price_selectors", crawlers.DefaultPriceSelectors)
	v.SetDefault("scrape.price_patterns", crawlers.DefaultPricePatterns)
	v.SetDefault("scrape.block_markers", crawlers.DefaultBlockMarkers)
	v.SetDefault("scrape.block_phrases", crawlers.DefaultBlockPhrases)

	// 定价
	v.SetDefault("pricing.tolerance", 0.05)

	// 价格修正
	v.SetDefault("correction.max_attempts", 5)
	v.SetDefault("correction.no_price_delay", 20*time.Second)
	v.SetDefault("correction.settle_delay.min", 2*time.Second)
	v.SetDefault("correction.settle_delay.max", 5*time.Second)
	v.SetDefault("correction.item_delay.min", 3*time.Second)
	v.SetDefault("correction.item_delay.max", 5*time.Second)
	v.SetDefault("correction.inbox_dir", "in")
	v.SetDefault("correction.work_dir", "in_work")
	v.SetDefault("correction.processed_dir", filepath.Join("in", "processed"))
	v.SetDefault("correction.source_pattern", DefaultSourcePattern)
	v.SetDefault("correction.stale_after", 30*time.Minute)
	v.SetDefault("correction.check_interval", 1900*time.Second)
	v.SetDefault("correction.retry_interval", 60*time.Second)
	v.SetDefault("correction.dry_run", false)

	// 批量抓取
	v.SetDefault("bulk.workers", 3)
	v.SetDefault("bulk.retry_ceiling", 10)
	v.SetDefault("bulk.browser_memory_mb", 300)
	v.SetDefault("bulk.output_dir", "output")

	v.SetDefault("metrics.listen", "")
}

// Validate 检查配置取值范围
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Ozon.BaseURL != "", "ozon.base_url 不能为空")
	check(c.Ozon.MaxAttempts >= 1, "ozon.max_attempts 必须 >= 1 (当前: %d)", c.Ozon.MaxAttempts)
	check(c.Ozon.Timeout > 0, "ozon.timeout 必须 > 0")
	check(c.Ozon.RequestsPerSecond >= 0, "ozon.requests_per_second 不能为负数")
	check(c.Identity.MaxProxies >= 0, "identity.max_proxies 不能为负数 (0为不限制)")
	check(c.Identity.CheckWorkers >= 1, "identity.check_workers 必须 >= 1")
	check(c.Browser.NavigationTimeout > 0, "browser.navigation_timeout 必须 > 0")
	check(c.Scrape.MaxRetries >= 1 && c.Scrape.MaxRetries <= 20, "scrape.max_retries 必须在 1-20 之间 (当前: %d)", c.Scrape.MaxRetries)
	check(c.Pricing.Tolerance >= 0 && c.Pricing.Tolerance < 1, "pricing.tolerance 必须在 [0, 1) 之间 (当前: %.3f)", c.Pricing.Tolerance)
	check(len(c.Pricing.Conditions) > 0, "pricing.conditions 不能为空")
	for i, cond := range c.Pricing.Conditions {
		check(cond.MinOffset <= cond.MaxOffset, "pricing.conditions[%d] min_offset 大于 max_offset", i)
		check(cond.OldPriceMultiplier > 0 && cond.PriceMultiplier > 0, "pricing.conditions[%d] 乘数必须 > 0", i)
		check(cond.MinPriceDiscount >= 0 && cond.MinPriceDiscount < 1, "pricing.conditions[%d] min_price_discount 必须在 [0, 1) 之间", i)
	}
	check(c.Correction.MaxAttempts >= 1, "correction.max_attempts 必须 >= 1 (当前: %d)", c.Correction.MaxAttempts)
	check(c.Correction.NoPriceDelay >= 0, "correction.no_price_delay 不能为负数")
	check(c.Correction.CheckInterval > 0, "correction.check_interval 必须 > 0")
	check(c.Correction.WorkDir != "", "correction.work_dir 不能为空")
	check(c.Bulk.Workers >= 1 && c.Bulk.Workers <= 50, "bulk.workers 必须在 1-50 之间 (当前: %d)", c.Bulk.Workers)
	check(c.Bulk.RetryCeiling >= 0, "bulk.retry_ceiling 不能为负数")

	for name, r := range map[string]utils.DelayRange{
		"scrape.request_delay":    c.Scrape.RequestDelay,
		"correction.settle_delay": c.Correction.SettleDelay,
		"correction.item_delay":   c.Correction.ItemDelay,
	} {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// ClientOptions 卖家接口客户端参数
func (c *Config) ClientOptions() ozon.Options {
	return ozon.Options{
		BaseURL: c.Ozon.BaseURL,
		Timeout: c.Ozon.Timeout,
		Retry: utils.Backoff{
			MaxAttempts: c.Ozon.MaxAttempts,
			Base:        c.Ozon.BackoffBase,
			Ceiling:     c.Ozon.BackoffMax,
		},
		RequestsPerSecond: c.Ozon.RequestsPerSecond,
	}
}

// PoolOptions 身份池参数
func (c *Config) PoolOptions() crawlers.PoolOptions {
	return crawlers.PoolOptions{
		MaxProxies:   c.Identity.MaxProxies,
		CheckWorkers: c.Identity.CheckWorkers,
	}
}

// RodOptions 浏览器参数
func (c *Config) RodOptions() crawlers.RodOptions {
	return crawlers.RodOptions{
		Headless:          c.Browser.Headless,
		Bin:               c.Browser.Bin,
		NavigationTimeout: c.Browser.NavigationTimeout,
		AcceptLanguage:    c.Browser.AcceptLanguage,
	}
}

// ScraperOptions 抓取器参数
func (c *Config) ScraperOptions() crawlers.ScraperOptions {
	opts := crawlers.DefaultScraperOptions()
	opts.Retry.MaxAttempts = c.Scrape.MaxRetries
	opts.RotateDelay = c.Scrape.RotateDelay
	opts.ClickWait = c.Scrape.ClickWait
	opts.SettleDelay = c.Scrape.SettleDelay
	opts.DebugDir = c.Scrape.DebugDir
	opts.Session.NavigationTimeout = c.Browser.NavigationTimeout
	opts.Session.RequestDelay = c.Scrape.RequestDelay
	opts.Session.WarmupURLs = c.Browser.WarmupURLs
	return opts
}

// CorrectionOptions 价格修正参数
func (c *Config) CorrectionOptions() CorrectionOptions {
	return CorrectionOptions{
		MaxAttempts:  c.Correction.MaxAttempts,
		Tolerance:    c.Pricing.Tolerance,
		NoPriceDelay: c.Correction.NoPriceDelay,
		SettleDelay:  c.Correction.SettleDelay,
		ItemDelay:    c.Correction.ItemDelay,
		DryRun:       c.Correction.DryRun,
	}
}

// InboxOptions 收件箱参数
func (c *Config) InboxOptions() InboxOptions {
	return InboxOptions{
		InboxDir:      c.Correction.InboxDir,
		WorkDir:       c.Correction.WorkDir,
		ProcessedDir:  c.Correction.ProcessedDir,
		SourcePattern: c.Correction.SourcePattern,
		StaleAfter:    c.Correction.StaleAfter,
	}
}

// BulkOptions 批量抓取参数
func (c *Config) BulkOptions() BulkOptions {
	return BulkOptions{
		Workers:       c.Bulk.Workers,
		RetryCeiling:  c.Bulk.RetryCeiling,
		RebuildDelay:  c.Scrape.RotateDelay,
		StartInterval: time.Second,
		ShowProgress:  true,
	}
}

// ResourceConfig 资源监控参数
func (c *Config) ResourceConfig() crawlers.ResourceMonitorConfig {
	return crawlers.ResourceMonitorConfig{
		BrowserMemory:       int64(c.Bulk.BrowserMemoryMB) * 1024 * 1024,
		SafetyReserveMemory: 512 * 1024 * 1024,
		MaxWorkersLimit:     50,
	}
}
