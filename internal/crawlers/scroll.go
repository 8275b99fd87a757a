package crawlers

import (
	"context"
	"time"

	"github.com/RecoveryAshes/HackSync/internal/utils"
)

const (
	// DefaultMaxScrollAttempts 滚动次数硬上限
	DefaultMaxScrollAttempts = 20
	// DefaultMinScrollAttempts 判定高度稳定前至少完成的滚动次数
	DefaultMinScrollAttempts = 4
	// DefaultScrollSettle 每次滚动后的等待时间
	DefaultScrollSettle = 2 * time.Second
)

// ScrollLoader 通过反复滚动到底部触发懒加载,直到页面高度稳定或次数耗尽
type ScrollLoader struct {
	MaxAttempts int
	MinAttempts int
	Settle      time.Duration
}

// ScrollStats 滚动结果
type ScrollStats struct {
	Attempts    int  // 实际滚动次数
	Comparisons int  // 高度比较次数
	FinalHeight int  // 最后一次读取到的高度
	Stable      bool // 是否因高度稳定而停止
}

// NewScrollLoader 使用默认参数创建滚动加载器
func NewScrollLoader() *ScrollLoader {
	return &ScrollLoader{
		MaxAttempts: DefaultMaxScrollAttempts,
		MinAttempts: DefaultMinScrollAttempts,
		Settle:      DefaultScrollSettle,
	}
}

// Load 推进页面内容到(近似)完整长度
// 永不返回错误: 高度始终不稳定的页面只保留预算内加载到的内容
func (l *ScrollLoader) Load(ctx context.Context, session PageSession) ScrollStats {
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxScrollAttempts
	}
	minAttempts := l.MinAttempts
	if minAttempts < 0 {
		minAttempts = 0
	}

	var stats ScrollStats
	previousHeight := 0

	for stats.Attempts < maxAttempts {
		currentHeight, err := session.MeasureHeight(ctx)
		if err != nil {
			utils.Warnf("读取页面高度失败,停止滚动: %v", err)
			return stats
		}
		stats.Comparisons++
		stats.FinalHeight = currentHeight

		// 初始几次高度可能在内容加载前短暂不变,必须先完成minAttempts次滚动
		if previousHeight >= currentHeight && stats.Attempts >= minAttempts {
			stats.Stable = true
			break
		}
		previousHeight = currentHeight

		if err := session.ScrollToEnd(ctx); err != nil {
			utils.Warnf("滚动失败(第%d次): %v", stats.Attempts+1, err)
		}
		if err := session.WaitSettle(ctx, l.Settle); err != nil {
			utils.Warnf("滚动等待被中断: %v", err)
			stats.Attempts++
			return stats
		}
		stats.Attempts++
		utils.Debugf("滚动 %d/%d, 页面高度: %d", stats.Attempts, maxAttempts, currentHeight)
	}

	if stats.Stable {
		utils.Infof("📜 滚动完成: 高度稳定于 %d (滚动%d次)", stats.FinalHeight, stats.Attempts)
	} else {
		utils.Warnf("📜 滚动次数耗尽(%d次),页面高度仍未稳定", stats.Attempts)
	}
	return stats
}
