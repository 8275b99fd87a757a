package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

const (
	// DefaultSourceURL 固定的数据源页面
	DefaultSourceURL = "https://hackscrapped.vercel.app/"
	// DefaultInitialSettle 导航完成后的初始等待
	DefaultInitialSettle = 5 * time.Second
	// DefaultSampleSize 日志中打印的样例记录数
	DefaultSampleSize = 2
)

// ExtractionOptions 单次提取的参数
type ExtractionOptions struct {
	SourceURL      string
	InitialSettle  time.Duration
	OutputDir      string
	SnapshotFile   string
	ScreenshotFile string
	SampleSize     int
}

// DefaultExtractionOptions 默认参数,产物写到当前目录
func DefaultExtractionOptions() ExtractionOptions {
	return ExtractionOptions{
		SourceURL:      DefaultSourceURL,
		InitialSettle:  DefaultInitialSettle,
		OutputDir:      ".",
		SnapshotFile:   models.SnapshotFilename,
		ScreenshotFile: models.ScreenshotFilename,
		SampleSize:     DefaultSampleSize,
	}
}

// ExtractionRun 一次完整的页面访问: 导航 → 滚动加载 → 提取卡片 → 写出截图和快照
type ExtractionRun struct {
	Factory   SessionFactory
	Options   ExtractionOptions
	Loader    *ScrollLoader
	Extractor *CardExtractor
}

// NewExtractionRun 使用默认滚动器和提取器
func NewExtractionRun(factory SessionFactory, opts ExtractionOptions) *ExtractionRun {
	return &ExtractionRun{
		Factory:   factory,
		Options:   opts,
		Loader:    NewScrollLoader(),
		Extractor: NewCardExtractor(),
	}
}

// SnapshotPath 快照文件的位置
func (r *ExtractionRun) SnapshotPath() string {
	return filepath.Join(r.Options.OutputDir, r.snapshotFile())
}

// ScreenshotPath 截图文件的位置
func (r *ExtractionRun) ScreenshotPath() string {
	name := r.Options.ScreenshotFile
	if name == "" {
		name = models.ScreenshotFilename
	}
	return filepath.Join(r.Options.OutputDir, name)
}

func (r *ExtractionRun) snapshotFile() string {
	if r.Options.SnapshotFile == "" {
		return models.SnapshotFilename
	}
	return r.Options.SnapshotFile
}

func (r *ExtractionRun) sourceURL() string {
	if r.Options.SourceURL == "" {
		return DefaultSourceURL
	}
	return r.Options.SourceURL
}

// Run 执行一次提取,返回按DOM顺序排列的快照
// 会话在任何退出路径上都会被关闭,包括浏览器操作panic
func (r *ExtractionRun) Run(ctx context.Context) (snapshot *models.Snapshot, err error) {
	if r.Factory == nil {
		return nil, fmt.Errorf("未配置渲染会话")
	}
	loader := r.Loader
	if loader == nil {
		loader = NewScrollLoader()
	}
	extractor := r.Extractor
	if extractor == nil {
		extractor = NewCardExtractor()
	}

	source := r.sourceURL()
	if err := utils.ValidateURL(source); err != nil {
		return nil, fmt.Errorf("无效的来源URL: %w", err)
	}
	startTime := time.Now()

	session, err := r.Factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("创建渲染会话失败: %w", err)
	}
	defer func() {
		if rec := recover(); rec != nil {
			utils.Errorf("捕获panic: URL=%s, 错误=%v, 类型=panic恢复", source, rec)
			snapshot = nil
			err = fmt.Errorf("%w: %v", ErrBrowserCrashed, rec)
		}
		if closeErr := session.Close(); closeErr != nil {
			utils.Warnf("释放渲染会话失败: %v", closeErr)
		}
	}()

	utils.Infof("🌐 访问页面: %s", source)
	if err := session.Navigate(ctx, source); err != nil {
		return nil, err
	}
	if err := session.WaitSettle(ctx, r.Options.InitialSettle); err != nil {
		return nil, err
	}

	loader.Load(ctx, session)

	records, err := extractor.Extract(ctx, session)
	if err != nil {
		return nil, err
	}

	r.saveScreenshot(ctx, session)

	snapshot = models.NewSnapshot(source, records)
	if err := models.SaveRecordsToFile(r.SnapshotPath(), snapshot.Records); err != nil {
		return nil, fmt.Errorf("保存快照失败: %w", err)
	}

	utils.Infof("✅ 提取完成: %d 条记录, 耗时 %.1f 秒 (快照: %s)",
		snapshot.Len(), time.Since(startTime).Seconds(), r.SnapshotPath())
	r.logSample(ctx, snapshot)
	return snapshot, nil
}

// saveScreenshot 截图只用于诊断,失败不影响结果
func (r *ExtractionRun) saveScreenshot(ctx context.Context, session PageSession) {
	path := r.ScreenshotPath()
	err := session.Screenshot(ctx, path)
	switch {
	case err == nil:
		utils.Debugf("截图已保存: %s", path)
	case errors.Is(err, ErrScreenshotUnsupported):
		utils.Debugf("当前会话不支持截图,跳过")
	default:
		utils.Warnf("保存截图失败: %v", err)
	}
}

func (r *ExtractionRun) logSample(ctx context.Context, snapshot *models.Snapshot) {
	n := r.Options.SampleSize
	if n <= 0 || snapshot.Len() == 0 {
		return
	}
	if n > snapshot.Len() {
		n = snapshot.Len()
	}

	sample, err := json.MarshalIndent(snapshot.Records[:n], "", "  ")
	if err != nil {
		return
	}
	utils.FromContext(ctx).Debug().
		Str("snapshot_id", snapshot.ID).
		Time("captured_at", snapshot.CapturedAt).
		Msgf("样例记录:\n%s", sample)
}
