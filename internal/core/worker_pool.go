package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// DefaultStoreWorkers 存储worker数量
const DefaultStoreWorkers = 2

// ErrPoolClosed worker池已关闭
var ErrPoolClosed = errors.New("worker池已关闭")

// WorkerPool 有界worker池,存储的阻塞调用在这里执行
// 由进程显式创建和关闭,在多次编排调用之间共享
type WorkerPool struct {
	jobs  chan job
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// NewWorkerPool 启动size个worker
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultStoreWorkers
	}

	p := &WorkerPool{jobs: make(chan job)}
	for i := 0; i < size; i++ {
		workerID := i + 1
		p.group.Go(func() error {
			p.worker(workerID)
			return nil
		})
	}
	utils.Debugf("存储worker池已启动: %d 个worker", size)
	return p
}

func (p *WorkerPool) worker(workerID int) {
	for j := range p.jobs {
		j.done <- runJob(j)
	}
	utils.Debugf("Worker %d 退出", workerID)
}

// runJob 任务panic转换为错误,worker继续运行
func runJob(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("存储任务panic: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

// Do 把fn交给worker执行并等待结果
// 等待排队时可被ctx取消;任务一旦开始,总是等到fn返回,取消由fn自己通过ctx感知
func (p *WorkerPool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	return <-j.done
}

// Shutdown 停止接收新任务并等待worker退出,可重复调用
func (p *WorkerPool) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()

		_ = p.group.Wait()
		utils.Debugf("存储worker池已关闭")
	})
}
