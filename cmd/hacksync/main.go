package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/HackSync/internal/core"
	"github.com/RecoveryAshes/HackSync/internal/crawlers"
	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile     string
	verbose        bool
	logLevel       string
	headers        []string // 页面请求附加头部
	validateConfig bool

	// 运行参数
	fromHTML  string
	outputDir string
	host      string
	port      int
)

// appConfig 在PersistentPreRunE中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "hacksync",
	Short: "黑客松列表抓取与同步工具",
	Long: `HackSync - 抓取黑客松列表页面并整体替换到数据库

流程:
  • 无头浏览器打开列表页,滚动直到内容不再增长
  • 逐张解析活动卡片,写入 hackathon_data.json 快照
  • 删除存储中的全部旧记录,插入快照中的新记录
  • 整轮失败时间隔5秒重试,最多3次

存储连接串通过 MONGO_URL 或 HACKSYNC_STORE_URL 设置:
  mongodb://...        MongoDB (默认库 HOC_Users, 集合 hackathons)
  postgres://...       PostgreSQL (表 hackathons)
  sqlite://hacks.db    SQLite

示例:
  hacksync serve --port 8000
  hacksync run
  hacksync extract --from-html saved_page.html
  hacksync --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		appConfig = config

		logConfig := config.LogConfig()
		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		} else if verbose {
			logConfig.Level = "debug"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfig {
			return runValidateConfig(appConfig)
		}
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	// 不需要加载配置
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("HackSync %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// runValidateConfig 检查配置并打印脱敏后的有效值
func runValidateConfig(cfg *core.Config) error {
	utils.Info("🔍 验证配置...")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	requestHeaders, err := cfg.RequestHeaders(headers)
	if err != nil {
		return fmt.Errorf("请求头验证失败: %w", err)
	}

	utils.Info("✅ 配置验证通过!")
	utils.Infof("存储: %s", utils.RedactTarget(cfg.Store.URL))
	utils.Infof("来源: %s", crawlers.DefaultSourceURL)
	utils.Infof("重试: 最多%d次, 间隔%v", core.DefaultMaxAttempts, core.DefaultRetryDelay)

	safeHeaders := requestHeaders.Safe()
	utils.Infof("附加请求头 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

// signalContext Ctrl+C / SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// sessionFactory --from-html 时回放保存的页面,否则启动浏览器
func sessionFactory(cfg *core.Config) (crawlers.SessionFactory, error) {
	if fromHTML != "" {
		utils.Infof("📄 回放本地页面: %s", fromHTML)
		return crawlers.NewHTMLSessionFactory(fromHTML), nil
	}

	opts := cfg.BrowserOptions()
	requestHeaders, err := cfg.RequestHeaders(headers)
	if err != nil {
		return nil, err
	}
	opts.Headers = requestHeaders.Merged()
	if len(opts.Headers) > 0 {
		utils.Debugf("附加请求头: %v", requestHeaders.Safe())
	}

	var monitor *crawlers.ResourceMonitor
	if cfg.Browser.CheckResources {
		monitor = crawlers.NewResourceMonitor(crawlers.DefaultResourceMonitorConfig())
	}
	return crawlers.NewRodSessionFactory(opts, monitor), nil
}

// newOrchestrator 组装编排器,运行结束后写入报告
func newOrchestrator(cfg *core.Config, pool *core.WorkerPool) (*core.Orchestrator, error) {
	factory, err := sessionFactory(cfg)
	if err != nil {
		return nil, err
	}

	orchestrator := core.NewOrchestrator(cfg, factory, pool)
	reporter := utils.NewReporter(cfg.Pipeline.ReportDir)
	orchestrator.OnReport = func(report *models.RunReport) {
		path, err := reporter.WriteRunReport(report)
		if err != nil {
			utils.Warnf("保存运行报告失败: %v", err)
			return
		}
		utils.Infof("📄 运行报告: %s", path)
	}
	return orchestrator, nil
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "页面请求附加头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置正确性")

	// 服务参数
	serveCmd.Flags().StringVar(&host, "host", "", "监听地址 (默认取配置 server.host)")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "监听端口 (默认取配置 server.port 或 PORT)")

	// 提取参数
	for _, cmd := range []*cobra.Command{runCmd, extractCmd} {
		cmd.Flags().StringVar(&fromHTML, "from-html", "", "回放本地保存的页面而不是启动浏览器")
		cmd.Flags().StringVarP(&outputDir, "output", "o", "", "快照和截图输出目录 (默认取配置 scrape.output_dir)")
	}

	// 添加子命令
	rootCmd.AddCommand(serveCmd, runCmd, extractCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
