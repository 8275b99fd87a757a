package core

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/HackSync/internal/crawlers"
	"github.com/RecoveryAshes/HackSync/internal/sink"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// ErrMissingStoreTarget 未配置存储连接串
var ErrMissingStoreTarget = errors.New("MONGO_URL environment variable not set")

// ConfigError 配置错误,不重试,在任何提取尝试之前返回
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config 应用程序配置
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StoreConfig 存储配置
type StoreConfig struct {
	URL        string `mapstructure:"url"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless          bool              `mapstructure:"headless"`
	ViewportWidth     int               `mapstructure:"viewport_width"`
	ViewportHeight    int               `mapstructure:"viewport_height"`
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout"`
	Bin               string            `mapstructure:"bin"`
	UserAgent         string            `mapstructure:"user_agent"`
	CheckResources    bool              `mapstructure:"check_resources"`
	Headers           map[string]string `mapstructure:"headers"`
}

// ScrapeConfig 提取配置
type ScrapeConfig struct {
	InitialSettle     time.Duration `mapstructure:"initial_settle"`
	ScrollSettle      time.Duration `mapstructure:"scroll_settle"`
	MaxScrollAttempts int           `mapstructure:"max_scroll_attempts"`
	MinScrollAttempts int           `mapstructure:"min_scroll_attempts"`
	OutputDir         string        `mapstructure:"output_dir"`
	SnapshotFile      string        `mapstructure:"snapshot_file"`
	ScreenshotFile    string        `mapstructure:"screenshot_file"`
}

// PipelineConfig 存储与报告配置
// 重试次数和间隔固定为 DefaultMaxAttempts / DefaultRetryDelay,不开放配置
type PipelineConfig struct {
	StoreWorkers int    `mapstructure:"store_workers"`
	ReportDir    string `mapstructure:"report_dir"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
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

// LoadConfig 加载配置文件和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".hacksync"))
		}
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// bindEnv HACKSYNC_前缀的环境变量覆盖配置,另外兼容MONGO_URL和PORT
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("HACKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("store.url", "HACKSYNC_STORE_URL", "MONGO_URL")
	_ = v.BindEnv("server.port", "HACKSYNC_SERVER_PORT", "PORT")
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 存储
	v.SetDefault("store.url", "")
	v.SetDefault("store.database", sink.DefaultDatabase)
	v.SetDefault("store.collection", sink.DefaultCollection)

	// 浏览器
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.user_agent", crawlers.DefaultUserAgent)
	v.SetDefault("browser.check_resources", true)

	// 提取
	v.SetDefault("scrape.initial_settle", "5s")
	v.SetDefault("scrape.scroll_settle", "2s")
	v.SetDefault("scrape.max_scroll_attempts", crawlers.DefaultMaxScrollAttempts)
	v.SetDefault("scrape.min_scroll_attempts", crawlers.DefaultMinScrollAttempts)
	v.SetDefault("scrape.output_dir", ".")
	v.SetDefault("scrape.snapshot_file", "hackathon_data.json")
	v.SetDefault("scrape.screenshot_file", "hackathon_page.png")

	// 流水线
	v.SetDefault("pipeline.store_workers", DefaultStoreWorkers)
	v.SetDefault("pipeline.report_dir", "reports")

	// 服务
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)

	// 日志
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// Validate 检查必需配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.URL) == "" {
		return &ConfigError{Key: "store.url", Err: ErrMissingStoreTarget}
	}
	if _, err := sink.DetectKind(c.Store.URL); err != nil {
		return &ConfigError{Key: "store.url", Err: err}
	}
	if _, err := c.RequestHeaders(nil); err != nil {
		return &ConfigError{Key: "browser.headers", Err: err}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Key: "server.port", Err: fmt.Errorf("端口无效: %d", c.Server.Port)}
	}
	return nil
}

// ServerAddr 监听地址
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BrowserOptions 转换为浏览器会话参数
func (c *Config) BrowserOptions() crawlers.BrowserOptions {
	opts := crawlers.DefaultBrowserOptions()
	opts.Headless = c.Browser.Headless
	if c.Browser.ViewportWidth > 0 {
		opts.ViewportWidth = c.Browser.ViewportWidth
	}
	if c.Browser.ViewportHeight > 0 {
		opts.ViewportHeight = c.Browser.ViewportHeight
	}
	if c.Browser.NavigationTimeout > 0 {
		opts.NavigationTimeout = c.Browser.NavigationTimeout
	}
	opts.Bin = c.Browser.Bin
	if c.Browser.UserAgent != "" {
		opts.UserAgent = c.Browser.UserAgent
	}
	return opts
}

// RequestHeaders 合并配置与命令行的页面请求头并校验
func (c *Config) RequestHeaders(cliHeaders []string) (*crawlers.RequestHeaders, error) {
	headers, err := crawlers.NewRequestHeaders(c.Browser.Headers, cliHeaders)
	if err != nil {
		return nil, err
	}
	if err := headers.Validate(); err != nil {
		return nil, err
	}
	return headers, nil
}

// ExtractionOptions 转换为提取参数
// 数据源固定为 crawlers.DefaultSourceURL,配置无法改变
func (c *Config) ExtractionOptions() crawlers.ExtractionOptions {
	opts := crawlers.DefaultExtractionOptions()
	opts.SourceURL = crawlers.DefaultSourceURL
	opts.InitialSettle = c.Scrape.InitialSettle
	if c.Scrape.OutputDir != "" {
		opts.OutputDir = c.Scrape.OutputDir
	}
	if c.Scrape.SnapshotFile != "" {
		opts.SnapshotFile = c.Scrape.SnapshotFile
	}
	if c.Scrape.ScreenshotFile != "" {
		opts.ScreenshotFile = c.Scrape.ScreenshotFile
	}
	return opts
}

// ScrollLoader 按配置创建滚动加载器
func (c *Config) ScrollLoader() *crawlers.ScrollLoader {
	loader := crawlers.NewScrollLoader()
	if c.Scrape.MaxScrollAttempts > 0 {
		loader.MaxAttempts = c.Scrape.MaxScrollAttempts
	}
	if c.Scrape.MinScrollAttempts >= 0 {
		loader.MinAttempts = c.Scrape.MinScrollAttempts
	}
	if c.Scrape.ScrollSettle > 0 {
		loader.Settle = c.Scrape.ScrollSettle
	}
	return loader
}

// SinkOptions 转换为存储参数
func (c *Config) SinkOptions() sink.Options {
	return sink.Options{
		Database:   c.Store.Database,
		Collection: c.Store.Collection,
	}
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
