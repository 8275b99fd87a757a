package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/sink"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// ErrEmptySnapshot 快照中没有记录
var ErrEmptySnapshot = errors.New("快照为空")

// 对外返回的结果消息
const (
	MessageNoValidData   = "No valid data found in the JSON file."
	messageReplaced      = "Successfully updated hackathon data: deleted %d records and inserted %d new records."
	messageUpdateFailure = "Error updating hackathon data: %v"
)

// SnapshotSource 读取本次尝试的快照
type SnapshotSource func(ctx context.Context) ([]models.Record, error)

// FileSnapshotSource 从序列化的快照文件读取
func FileSnapshotSource(path string) SnapshotSource {
	return func(ctx context.Context) ([]models.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return models.LoadRecordsFromFile(path)
	}
}

// RefreshPipeline 一次"删除全部 → 读取快照 → 插入"的刷新
// 存储调用都在worker池中执行
type RefreshPipeline struct {
	Pool *WorkerPool
}

// NewRefreshPipeline 创建刷新流水线
func NewRefreshPipeline(pool *WorkerPool) *RefreshPipeline {
	return &RefreshPipeline{Pool: pool}
}

// do 池为nil时在当前goroutine执行
func (p *RefreshPipeline) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Pool == nil {
		return fn(ctx)
	}
	return p.Pool.Do(ctx, fn)
}

// Run 执行一次刷新,任何错误都转换为失败的PipelineOutcome,不会向上抛出
// 存储连接一旦打开,无论结果如何都会被关闭
func (p *RefreshPipeline) Run(ctx context.Context, source SnapshotSource, open sink.Opener) (outcome models.PipelineOutcome) {
	var store sink.DataSink

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("捕获panic: 刷新流水线, 错误=%v, 类型=panic恢复", r)
			outcome = failedOutcome(ctx, outcome, fmt.Errorf("%v", r))
		}
		if store != nil {
			closeCtx := context.WithoutCancel(ctx)
			err := p.do(closeCtx, store.Close)
			if errors.Is(err, ErrPoolClosed) {
				err = store.Close(closeCtx)
			}
			if err != nil {
				utils.Warnf("关闭存储连接失败: %v", err)
			}
		}
	}()

	if err := p.do(ctx, func(ctx context.Context) error {
		s, err := open(ctx)
		if err != nil {
			return err
		}
		store = s
		return nil
	}); err != nil {
		return failedOutcome(ctx, outcome, err)
	}

	// 1. 删除旧记录
	if err := p.do(ctx, func(ctx context.Context) error {
		n, err := store.DeleteAll(ctx)
		outcome.RecordsReplaced = n
		return err
	}); err != nil {
		return failedOutcome(ctx, outcome, err)
	}
	utils.Debugf("已删除 %d 条旧记录", outcome.RecordsReplaced)

	// 2. 读取快照
	records, err := source(ctx)
	if err != nil {
		return failedOutcome(ctx, outcome, err)
	}

	// 3. 插入新记录
	if len(records) == 0 {
		outcome.Succeeded = false
		outcome.Message = MessageNoValidData
		utils.Warnf("⚠️  %v,已删除 %d 条旧记录但没有插入新记录", ErrEmptySnapshot, outcome.RecordsReplaced)
		return outcome
	}

	if err := p.do(ctx, func(ctx context.Context) error {
		n, err := store.InsertMany(ctx, records)
		outcome.RecordsInserted = n
		return err
	}); err != nil {
		return failedOutcome(ctx, outcome, err)
	}

	outcome.Succeeded = true
	outcome.Message = fmt.Sprintf(messageReplaced, outcome.RecordsReplaced, outcome.RecordsInserted)
	utils.FromContext(ctx).Info().Msgf("💾 %s", outcome.Message)
	return outcome
}

// failedOutcome 保留已观察到的计数,插入失败时不会被误报为成功
func failedOutcome(ctx context.Context, outcome models.PipelineOutcome, err error) models.PipelineOutcome {
	outcome.Succeeded = false
	outcome.Message = fmt.Sprintf(messageUpdateFailure, err)
	utils.FromContext(ctx).Error().Err(err).Msg("刷新存储失败")
	return outcome
}
