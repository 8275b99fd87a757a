package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RecoveryAshes/HackSync/internal/crawlers"
	"github.com/RecoveryAshes/HackSync/internal/metrics"
	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/sink"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

const (
	// DefaultMaxAttempts 整轮"提取+替换"的最大尝试次数
	DefaultMaxAttempts = 3
	// DefaultRetryDelay 两次尝试之间的固定间隔
	DefaultRetryDelay = 5 * time.Second

	unknownFailure = "Unknown error during DB update"
)

// ErrRunInProgress 已有一次运行在进行中
var ErrRunInProgress = errors.New("已有刷新任务在运行")

// ExhaustedError 重试次数耗尽,携带最后一次失败的信息
type ExhaustedError struct {
	Attempts  int
	LastError string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("Failed after %d attempts: %s", e.Attempts, e.LastError)
}

// State 编排状态
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Machine 编排状态机: Idle → Attempting(n) → {Succeeded | Attempting(n+1) | Failed}
// 所有方法都返回新值,不修改接收者
type Machine struct {
	State       State
	Attempt     int
	MaxAttempts int
	LastError   string
}

// NewMachine 创建处于Idle状态的状态机
func NewMachine(maxAttempts int) Machine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Machine{State: StateIdle, MaxAttempts: maxAttempts}
}

// Start Idle → Attempting(1)
func (m Machine) Start() Machine {
	if m.State != StateIdle {
		return m
	}
	m.State = StateAttempting
	m.Attempt = 1
	return m
}

// Next 根据本次尝试的结果转移状态
// 成功 → Succeeded;失败且未达上限 → Attempting(n+1);失败且达到上限 → Failed
func (m Machine) Next(outcome models.PipelineOutcome, err error) Machine {
	if m.State != StateAttempting {
		return m
	}

	if err == nil && outcome.Succeeded {
		m.State = StateSucceeded
		m.LastError = ""
		return m
	}

	switch {
	case err != nil:
		m.LastError = err.Error()
	case outcome.Message != "":
		m.LastError = outcome.Message
	default:
		m.LastError = unknownFailure
	}

	if m.Attempt < m.MaxAttempts {
		m.Attempt++
		return m
	}
	m.State = StateFailed
	return m
}

// Abort 外部中止(例如进程退出),直接进入Failed
func (m Machine) Abort(err error) Machine {
	if m.Terminal() {
		return m
	}
	m.State = StateFailed
	if err != nil {
		m.LastError = err.Error()
	}
	return m
}

// Terminal 是否处于终止状态
func (m Machine) Terminal() bool {
	return m.State == StateSucceeded || m.State == StateFailed
}

// Extraction 产出快照并把它写到SnapshotPath
type Extraction interface {
	Run(ctx context.Context) (*models.Snapshot, error)
	SnapshotPath() string
}

// Orchestrator 以固定间隔重试整轮"提取+替换",同一时刻只允许一次运行
type Orchestrator struct {
	Extraction Extraction
	Pipeline   *RefreshPipeline
	Opener     sink.Opener
	SourceURL  string
	// MaxAttempts / RetryDelay 由NewOrchestrator固定为默认值,测试中可改小
	MaxAttempts int
	RetryDelay  time.Duration

	// Precheck 在任何提取之前执行,返回的错误不重试
	Precheck func() error
	// Sleep 尝试之间的等待,测试中注入
	Sleep func(ctx context.Context, d time.Duration) error
	// OnReport 每次运行结束后回调(写报告文件等)
	OnReport func(report *models.RunReport)

	runMu sync.Mutex

	lastMu sync.RWMutex
	last   *models.RunReport
}

// NewOrchestrator 按配置组装编排器
func NewOrchestrator(cfg *Config, factory crawlers.SessionFactory, pool *WorkerPool) *Orchestrator {
	extraction := crawlers.NewExtractionRun(factory, cfg.ExtractionOptions())
	extraction.Loader = cfg.ScrollLoader()

	return &Orchestrator{
		Extraction:  extraction,
		Pipeline:    NewRefreshPipeline(pool),
		Opener:      sink.NewOpener(cfg.Store.URL, cfg.SinkOptions()),
		SourceURL:   extraction.Options.SourceURL,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		Precheck:    cfg.Validate,
	}
}

// LastReport 最近一次运行的报告,没有运行过时为nil
func (o *Orchestrator) LastReport() *models.RunReport {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	return o.last
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run 执行一次完整的编排运行
// 返回值:
//   - 成功: (report, nil)
//   - 重试耗尽: (report, *ExhaustedError)
//   - 配置错误: (nil, *ConfigError),不进行任何提取
//   - 已有运行: (nil, ErrRunInProgress)
func (o *Orchestrator) Run(ctx context.Context) (*models.RunReport, error) {
	if !o.runMu.TryLock() {
		metrics.IncRejected()
		utils.Warn("⚠️  已有刷新任务在运行,拒绝本次触发")
		return nil, ErrRunInProgress
	}
	defer o.runMu.Unlock()

	if o.Precheck != nil {
		if err := o.Precheck(); err != nil {
			utils.Errorf("❌ 配置错误: %v", err)
			return nil, err
		}
	}

	maxAttempts := o.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	report := &models.RunReport{
		RunID:     uuid.New().String(),
		SourceURL: o.SourceURL,
		StartedAt: time.Now(),
		Attempts:  make([]models.AttemptReport, 0, maxAttempts),
	}
	ctx = utils.WithRunID(ctx, report.RunID)
	logger := utils.FromContext(ctx)
	logger.Info().Msgf("🚀 开始刷新任务 (最多尝试%d次)", maxAttempts)

	m := NewMachine(maxAttempts).Start()
	for !m.Terminal() {
		if m.Attempt > 1 {
			logger.Info().Msgf("等待 %.0f 秒后重试...", o.RetryDelay.Seconds())
			if err := o.sleep(ctx, o.RetryDelay); err != nil {
				m = m.Abort(err)
				break
			}
		}

		attempt := o.attempt(ctx, m.Attempt)
		report.Attempts = append(report.Attempts, attempt)
		metrics.IncAttempt(attempt.Outcome.Succeeded && attempt.Error == "")

		var attemptErr error
		if attempt.Error != "" {
			attemptErr = errors.New(attempt.Error)
		}
		m = m.Next(attempt.Outcome, attemptErr)

		if m.State != StateSucceeded {
			logger.Warn().Int("attempt", attempt.Attempt).Msgf("❌ 第%d次尝试失败: %s", attempt.Attempt, m.LastError)
		}
	}

	report.CompletedAt = time.Now()
	report.LastError = m.LastError
	metrics.ObserveRunDuration(report.CompletedAt.Sub(report.StartedAt).Seconds())

	var runErr error
	if m.State == StateSucceeded {
		report.Status = models.RunStatusSucceeded
		metrics.SetLastSuccess(float64(report.CompletedAt.Unix()))
		logger.Info().Msgf("✅ 刷新完成 (第%d次尝试)", m.Attempt)
	} else {
		report.Status = models.RunStatusFailed
		runErr = &ExhaustedError{Attempts: len(report.Attempts), LastError: m.LastError}
		logger.Error().Msgf("❌ %v", runErr)
	}
	metrics.IncRun(string(report.Status))

	o.lastMu.Lock()
	o.last = report
	o.lastMu.Unlock()

	if o.OnReport != nil {
		o.OnReport(report)
	}
	return report, runErr
}

// attempt 一轮完整的提取+替换,每轮都重新提取
func (o *Orchestrator) attempt(ctx context.Context, n int) (result models.AttemptReport) {
	result = models.AttemptReport{Attempt: n, StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			utils.FromContext(ctx).Error().Msgf("捕获panic: 第%d次尝试, 错误=%v, 类型=panic恢复", n, r)
			result.Error = fmt.Sprintf("%v", r)
		}
		result.Duration = time.Since(result.StartedAt).Seconds()
	}()

	utils.FromContext(ctx).Info().Int("attempt", n).Msgf("==================== [尝试 %d] ====================", n)

	extractStart := time.Now()
	snapshot, err := o.Extraction.Run(ctx)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Records = snapshot.Len()
	result.SnapshotID = snapshot.ID
	metrics.ObserveExtraction(time.Since(extractStart).Seconds(), snapshot.Len())

	pipeline := o.Pipeline
	if pipeline == nil {
		pipeline = NewRefreshPipeline(nil)
	}
	result.Outcome = pipeline.Run(ctx, FileSnapshotSource(o.Extraction.SnapshotPath()), o.Opener)
	metrics.SetStoreCounts(result.Outcome.RecordsReplaced, result.Outcome.RecordsInserted)
	return result
}
