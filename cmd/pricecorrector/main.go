package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/config"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/core"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/crawlers"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/metrics"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/pricing"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	envFile    string
	verbose    bool
	logLevel   string
	proxyFile  string
	headless   bool
	maxProxies int

	// correct
	workFile    string
	watch       bool
	dryRun      bool
	maxAttempts int
	tolerance   float64

	// scrape
	urlFile   string
	workers   int
	outputDir string

	// init-config
	initOutput string
	initForce  bool
)

// appConfig 由PersistentPreRunE加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "pricecorrector",
	Short: "Ozon店面价格修正工具",
	Long: `OzonPriceCorrector - Ozon商品店面价格自动修正工具

读取偏差商品列表, 抓取店面实际价格, 按条件表计算新价格并通过卖家接口提交,
直到店面价格回到 [基准价, 基准价×(1+容差)] 区间:
  • 代理+UA身份池, 拦截页自动处理和身份轮换
  • 逐行保存的工作文件和检查点, 中断后从下一行继续
  • 收件箱监视模式 (in/ → in_work/ → in/processed/)
  • 批量抓取URL价格, 输出JSON报告和价格表

示例:
  # 处理收件箱中最新的 bad_price_*.txt
  pricecorrector correct

  # 监视模式, 每1900秒检查一次
  pricecorrector correct --watch

  # 批量抓取价格
  pricecorrector scrape -f urls.txt --workers 4

  # 生成配置模板
  pricecorrector init-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init-config和version不依赖现有配置
		if cmd.Name() == "init-config" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		applyFlagOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("参数无效: %w", err)
		}

		logConfig := cfg.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if cfg.Metrics.Listen != "" {
			go func() {
				utils.Infof("📈 指标服务: http://%s/metrics", cfg.Metrics.Listen)
				if err := metrics.Serve(cmd.Context(), cfg.Metrics.Listen); err != nil {
					utils.Error(err, "指标服务退出")
				}
			}()
		}

		appConfig = cfg
		return nil
	},
}

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "修正工作文件中的商品价格",
	Long: `逐行处理工作文件: 抓取店面价格, 不在容差内则计算新价格并提交, 最多重复 max_attempts 次.
未指定 --file 时从收件箱选择工作文件, 处理完成后归档来源文件.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig

		var submitter core.PriceSubmitter
		client, err := newOzonClient(cfg)
		switch {
		case err == nil:
			submitter = client
		case cfg.Correction.DryRun:
			utils.Warnf("⚠️  演练模式, 忽略凭据错误: %v", err)
		default:
			return err
		}

		engine, err := pricing.NewEngine(cfg.Pricing.Conditions)
		if err != nil {
			return fmt.Errorf("条件表无效: %w", err)
		}

		pool, err := loadIdentityPool(ctx, cfg)
		if err != nil {
			return err
		}

		traffic := crawlers.NewTrafficStats()
		scraper, err := newScraper(cfg, pool, traffic)
		if err != nil {
			return err
		}
		defer scraper.Close()

		opts := cfg.CorrectionOptions()
		opts.ShowProgress = true
		orchestrator := core.NewCorrectionOrchestrator(scraper, submitter, engine, opts)

		defer func() {
			sent, recv := traffic.Totals()
			utils.Infof("📶 流量: 发送 %s, 接收 %s", utils.FormatBytes(sent), utils.FormatBytes(recv))
		}()

		if workFile != "" {
			_, err := orchestrator.ProcessFile(ctx, workFile, "")
			return interrupted(err)
		}

		inbox := core.NewInbox(cfg.InboxOptions())
		process := func(ctx context.Context, sel *core.Selection) error {
			_, err := orchestrator.ProcessFile(ctx, sel.WorkFile, sel.Source)
			return err
		}

		if watch {
			return interrupted(inbox.Watch(ctx, process, cfg.Correction.CheckInterval, cfg.Correction.RetryInterval))
		}

		processed, err := inbox.RunCycle(ctx, process)
		if err != nil {
			return interrupted(err)
		}
		if !processed {
			utils.Info("📭 收件箱中没有待处理的文件")
		}
		return nil
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "批量抓取商品页价格",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig

		if err := ValidateURLFile(urlFile); err != nil {
			return err
		}
		urls, err := utils.ReadURLsFromFile(urlFile)
		if err != nil {
			return fmt.Errorf("读取URL文件失败: %w", err)
		}
		if len(urls) == 0 {
			return fmt.Errorf("URL文件中没有有效的URL: %s", urlFile)
		}

		pool, err := loadIdentityPool(ctx, cfg)
		if err != nil {
			return err
		}

		traffic := crawlers.NewTrafficStats()
		monitor := crawlers.NewResourceMonitor(cfg.ResourceConfig())
		bulk := core.NewBulkScrapeOrchestrator(func(worker int) (core.WorkerScraper, error) {
			return newScraper(cfg, pool, traffic)
		}, monitor, traffic, cfg.BulkOptions())

		report, runErr := bulk.Run(ctx, urls)
		if report != nil {
			paths, err := utils.NewReporter(cfg.Bulk.OutputDir).WriteBulkReport(report)
			if err != nil {
				return err
			}
			utils.Infof("📄 价格表: %s", paths.PricesPath)
		}
		if err := interrupted(runErr); err != nil {
			return err
		}

		utils.Info("✨ 批量抓取任务完成!")
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <offer_id>...",
	Short: "查询商品在卖家后台的当前价格",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateOfferIDs(args); err != nil {
			return err
		}
		client, err := newOzonClient(appConfig)
		if err != nil {
			return err
		}

		items, err := client.ProductInfo(cmd.Context(), args)
		if err != nil {
			return fmt.Errorf("查询商品信息失败: %w", err)
		}

		fmt.Println("==================================================")
		fmt.Printf("📦 商品信息 (%d/%d)\n", len(items), len(args))
		fmt.Println("==================================================")
		for _, it := range items {
			fmt.Printf("%s\t%d\t%s\n", it.OfferID, it.ID, it.Name)
			fmt.Printf("  价格: %s  划线价: %s  最低价: %s %s\n",
				it.Price.String(), it.OldPrice.String(), it.MinPrice.String(), it.CurrencyCode)
		}
		return nil
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "生成配置文件模板",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := config.NewTemplateWriter(initOutput)
		if err := tw.Write(initForce); err != nil {
			return err
		}
		fmt.Printf("✅ 配置文件已生成: %s\n", tw.Path())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("OzonPriceCorrector %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "凭据环境文件")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVarP(&proxyFile, "proxy-file", "p", "", "代理列表文件")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().IntVar(&maxProxies, "max-proxies", 10, "最多使用的可用代理数 (0为不限制)")

	// correct
	correctCmd.Flags().StringVar(&workFile, "file", "", "直接处理指定的工作文件")
	correctCmd.Flags().BoolVar(&watch, "watch", false, "监视收件箱并定期处理")
	correctCmd.Flags().BoolVar(&dryRun, "dry-run", false, "只计算价格, 不提交")
	correctCmd.Flags().IntVar(&maxAttempts, "max-attempts", 5, "每个商品最多尝试次数")
	correctCmd.Flags().Float64Var(&tolerance, "tolerance", 0.05, "容差 (0.05 = 5%)")

	// scrape
	scrapeCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	scrapeCmd.Flags().IntVar(&workers, "workers", 3, "并发浏览器数量")
	scrapeCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "输出目录")
	scrapeCmd.MarkFlagRequired("url-file")

	// init-config
	initConfigCmd.Flags().StringVarP(&initOutput, "output", "o", config.DefaultConfigFile, "配置文件路径")
	initConfigCmd.Flags().BoolVar(&initForce, "force", false, "覆盖已存在的文件")

	rootCmd.AddCommand(correctCmd, scrapeCmd, infoCmd, initConfigCmd, versionCmd)
}

// applyFlagOverrides 显式指定的命令行参数覆盖配置文件
func applyFlagOverrides(cmd *cobra.Command, cfg *core.Config) {
	flags := cmd.Flags()
	if flags.Changed("proxy-file") {
		cfg.Identity.ProxyFile = proxyFile
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = headless
	}
	if flags.Changed("max-proxies") {
		cfg.Identity.MaxProxies = maxProxies
	}
	if flags.Changed("dry-run") {
		cfg.Correction.DryRun = dryRun
	}
	if flags.Changed("max-attempts") {
		cfg.Correction.MaxAttempts = maxAttempts
	}
	if flags.Changed("tolerance") {
		cfg.Pricing.Tolerance = tolerance
	}
	if flags.Changed("workers") {
		cfg.Bulk.Workers = workers
	}
	if flags.Changed("output") && cmd.Name() == "scrape" {
		cfg.Bulk.OutputDir = outputDir
	}
}

// interrupted 把信号导致的取消视为正常退出
func interrupted(err error) error {
	if err != nil && core.IsInterrupted(err) {
		utils.Warn("⏹️  已中断, 进度已保存")
		return nil
	}
	return err
}

func main() {
	// 设置信号处理(Ctrl+C优雅退出), 循环在已保存的步骤之间停止
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		msg := err.Error()
		if errors.Is(err, context.Canceled) {
			msg = "已取消"
		}
		fmt.Fprintf(os.Stderr, "错误: %s\n", strings.TrimSpace(msg))
		stop()
		os.Exit(1)
	}
}
